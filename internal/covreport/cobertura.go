package covreport

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// CoberturaReader parses Cobertura-style XML, the dialect coverage.py
// emits for Python projects.
type CoberturaReader struct{}

type coberturaDoc struct {
	XMLName  xml.Name           `xml:"coverage"`
	Packages []coberturaPackage `xml:"packages>package"`
}

type coberturaPackage struct {
	Name    string           `xml:"name,attr"`
	Classes []coberturaClass `xml:"classes>class"`
}

type coberturaClass struct {
	Name     string          `xml:"name,attr"`
	Filename string          `xml:"filename,attr"`
	Lines    []coberturaLine `xml:"lines>line"`
}

type coberturaLine struct {
	Number int `xml:"number,attr"`
	Hits   int `xml:"hits,attr"`
}

// Read parses a Cobertura XML report. Keys are repository-relative
// paths: the class filename attribute when it carries one, otherwise
// the dotted package name joined with the class name.
func (r *CoberturaReader) Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parseError(FormatCobertura, path, err)
	}

	var doc coberturaDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, parseError(FormatCobertura, path, fmt.Errorf("failed to decode XML: %w", err))
	}

	files := make(map[string]FileCoverage)
	for _, pkg := range doc.Packages {
		for _, cls := range pkg.Classes {
			key := coberturaKey(pkg.Name, cls)
			if key == "" {
				continue
			}
			lines := files[key]
			if lines == nil {
				lines = make(FileCoverage, len(cls.Lines))
				files[key] = lines
			}
			for _, ln := range cls.Lines {
				// A class split across entries keeps a line covered if
				// any entry saw it executed.
				lines[ln.Number] = lines[ln.Number] || ln.Hits > 0
			}
		}
	}

	return NewReport(files, coberturaResolver()), nil
}

func coberturaKey(pkgName string, cls coberturaClass) string {
	if strings.Contains(cls.Filename, "/") {
		return cls.Filename
	}
	if pkgName != "" && pkgName != "." {
		return strings.ReplaceAll(pkgName, ".", "/") + "/" + cls.Name
	}
	if cls.Filename != "" {
		return cls.Filename
	}
	return cls.Name
}

// coberturaResolver maps repository paths onto report keys. Keys
// already are repository-relative, so only repository-root files,
// which the dotted-package scheme cannot address, are refused.
func coberturaResolver() func(string) (string, bool) {
	return func(path string) (string, bool) {
		if !strings.Contains(path, "/") {
			return "", false
		}
		return path, true
	}
}
