// Package covreport parses coverage report files into a common per-line
// representation. Each supported dialect has its own reader behind the
// Reader interface; the dialect is always chosen by the caller, never
// guessed from file contents.
package covreport

import (
	"fmt"
	"sort"
)

// Format identifies a coverage report dialect.
type Format string

const (
	// FormatJaCoCo is the XML report written by the JaCoCo Java agent
	// (typically target/site/jacoco-aggregate/jacoco.xml).
	FormatJaCoCo Format = "jacoco"
	// FormatCobertura is the Cobertura-style XML written by Python's
	// coverage.py (coverage xml).
	FormatCobertura Format = "cobertura"
	// FormatGoProfile is the profile written by go test -coverprofile.
	FormatGoProfile Format = "goprofile"
	// FormatJaCoCoHTML is the JaCoCo index.html summary page. It carries
	// aggregate totals only, no per-line detail.
	FormatJaCoCoHTML Format = "jacoco-html"
)

// ParseFormat converts a user-supplied format name into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJaCoCo, FormatCobertura, FormatGoProfile, FormatJaCoCoHTML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown coverage report format %q", s)
}

// FileCoverage maps instrumented line numbers to whether they were
// executed at least once. Lines absent from the map were not
// instrumented at all.
type FileCoverage map[int]bool

// Report is the parsed form of a coverage report: per-file line
// coverage keyed by the dialect's canonical file key, plus the path
// resolution rule that maps repository-relative paths into that key
// space. Reports are built once and never mutated.
type Report struct {
	files   map[string]FileCoverage
	resolve func(path string) (string, bool)
}

// NewReport builds a Report from a file map and a path resolver. A nil
// resolver means keys already are repository-relative paths.
func NewReport(files map[string]FileCoverage, resolve func(string) (string, bool)) *Report {
	if resolve == nil {
		resolve = func(path string) (string, bool) { return path, true }
	}
	return &Report{files: files, resolve: resolve}
}

// Files returns the sorted canonical file keys present in the report.
func (r *Report) Files() []string {
	keys := make([]string, 0, len(r.files))
	for k := range r.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// File returns the line coverage stored under a canonical key.
func (r *Report) File(key string) (FileCoverage, bool) {
	lines, ok := r.files[key]
	return lines, ok
}

// Resolve maps a repository-relative path into the report's key space.
// ok is false when the dialect cannot instrument such a path at all
// (wrong extension, unmappable layout); a true result does not imply
// the key is present in the report.
func (r *Report) Resolve(path string) (string, bool) {
	return r.resolve(path)
}

// Reader parses a coverage report file into a Report.
type Reader interface {
	Read(path string) (*Report, error)
}

// TotalReader extracts aggregate covered/total counts from report
// flavors that carry no per-line detail.
type TotalReader interface {
	ReadTotal(path string) (covered, total int, err error)
}

// Options adjusts dialect-specific path mapping.
type Options struct {
	// JavaPackageRoots lists the leading package segments that anchor a
	// Java source path inside its source set (the reverse-domain roots
	// the build uses). Empty means the default roots.
	JavaPackageRoots []string
}

// ReaderFor returns the per-line reader for a format. FormatJaCoCoHTML
// has no per-line detail and is rejected; use JaCoCoHTMLReader directly
// for totals.
func ReaderFor(format Format, opts Options) (Reader, error) {
	switch format {
	case FormatJaCoCo:
		return &JaCoCoReader{PackageRoots: opts.JavaPackageRoots}, nil
	case FormatCobertura:
		return &CoberturaReader{}, nil
	case FormatGoProfile:
		return &GoProfileReader{}, nil
	case FormatJaCoCoHTML:
		return nil, fmt.Errorf("format %q carries totals only and cannot produce per-line coverage", format)
	}
	return nil, fmt.Errorf("unknown coverage report format %q", format)
}

// ParseError describes a missing or malformed coverage report. It is
// fatal for the run that hits it.
type ParseError struct {
	Path   string
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s report %s: %v", e.Format, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseError(format Format, path string, err error) *ParseError {
	return &ParseError{Path: path, Format: format, Err: err}
}
