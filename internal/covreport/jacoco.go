package covreport

import (
	"encoding/xml"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// defaultPackageRoots are the reverse-domain roots a Java package path
// is expected to start with inside a source set.
var defaultPackageRoots = []string{"com", "ca"}

// JaCoCoReader parses JaCoCo XML reports, including the aggregate form
// that wraps packages in per-module <group> elements.
type JaCoCoReader struct {
	// PackageRoots overrides the package roots used to map repository
	// paths onto report keys. Empty means defaultPackageRoots.
	PackageRoots []string
}

type jacocoDoc struct {
	XMLName  xml.Name        `xml:"report"`
	Name     string          `xml:"name,attr"`
	Groups   []jacocoGroup   `xml:"group"`
	Packages []jacocoPackage `xml:"package"`
}

type jacocoGroup struct {
	Name     string          `xml:"name,attr"`
	Packages []jacocoPackage `xml:"package"`
}

type jacocoPackage struct {
	Name        string             `xml:"name,attr"`
	SourceFiles []jacocoSourceFile `xml:"sourcefile"`
}

type jacocoSourceFile struct {
	Name  string       `xml:"name,attr"`
	Lines []jacocoLine `xml:"line"`
}

type jacocoLine struct {
	Nr int `xml:"nr,attr"`
	// Missed instructions and missed branches. A line counts as covered
	// only when both are zero, so a line with an untaken branch is
	// uncovered even though it executed.
	Mi int `xml:"mi,attr"`
	Mb int `xml:"mb,attr"`
}

// Read parses a JaCoCo XML report. Keys are "group/package/File.java";
// reports without groups are keyed "package/File.java".
func (r *JaCoCoReader) Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parseError(FormatJaCoCo, path, err)
	}

	var doc jacocoDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, parseError(FormatJaCoCo, path, fmt.Errorf("failed to decode XML: %w", err))
	}

	files := make(map[string]FileCoverage)
	addPackages := func(group string, pkgs []jacocoPackage) {
		for _, pkg := range pkgs {
			for _, sf := range pkg.SourceFiles {
				key := pkg.Name + "/" + sf.Name
				if group != "" {
					key = group + "/" + key
				}
				lines := make(FileCoverage, len(sf.Lines))
				for _, ln := range sf.Lines {
					lines[ln.Nr] = ln.Mi == 0 && ln.Mb == 0
				}
				files[key] = lines
			}
		}
	}
	for _, g := range doc.Groups {
		addPackages(g.Name, g.Packages)
	}
	addPackages("", doc.Packages)

	sourceRe, err := javaSourcePattern(r.PackageRoots)
	if err != nil {
		return nil, parseError(FormatJaCoCo, path, err)
	}
	return NewReport(files, jacocoResolver(files, sourceRe)), nil
}

// javaSourcePattern matches a repository-relative Java source path and
// captures the module prefix, the package path and the file name, e.g.
// "service-api/src/main/java/com/acme/Foo.java" into
// ("service-api", "com/acme", "Foo.java").
func javaSourcePattern(roots []string) (*regexp.Regexp, error) {
	if len(roots) == 0 {
		roots = defaultPackageRoots
	}
	quoted := make([]string, len(roots))
	for i, root := range roots {
		quoted[i] = regexp.QuoteMeta(root)
	}
	pattern := fmt.Sprintf(`^(.*?)/src/.*?/((?:%s)/.*)/([^/]+\.java)$`, strings.Join(quoted, "|"))
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to build source path pattern: %w", err)
	}
	return re, nil
}

// jacocoResolver maps repository paths onto report keys. The group is
// the last path segment before src/, matching how the aggregate report
// names its groups after Maven modules. When the grouped key is absent
// it falls back to the groupless key, so single-module reports resolve
// too.
func jacocoResolver(files map[string]FileCoverage, sourceRe *regexp.Regexp) func(string) (string, bool) {
	return func(path string) (string, bool) {
		m := sourceRe.FindStringSubmatch(path)
		if m == nil {
			return "", false
		}
		prefix, pkg, file := m[1], m[2], m[3]
		segments := strings.Split(prefix, "/")
		group := segments[len(segments)-1]

		key := group + "/" + pkg + "/" + file
		if _, ok := files[key]; ok {
			return key, true
		}
		bare := pkg + "/" + file
		if _, ok := files[bare]; ok {
			return bare, true
		}
		return key, true
	}
}
