package covreport

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// GoProfileReader parses the profile written by go test -coverprofile.
type GoProfileReader struct{}

// profileLineRe matches one coverage block:
// name.go:line.col,line.col numberOfStatements count
var profileLineRe = regexp.MustCompile(`^(.+):(\d+)\.(\d+),(\d+)\.(\d+) (\d+) (\d+)$`)

// Read parses a Go cover profile. Keys are the import-path-qualified
// file names the profile uses. Blocks overlap on brace lines, so a
// line is covered when any block containing it was executed.
func (r *GoProfileReader) Read(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, parseError(FormatGoProfile, path, err)
	}
	defer f.Close()

	files := make(map[string]FileCoverage)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if lineNo == 1 {
			if !strings.HasPrefix(line, "mode: ") {
				return nil, parseError(FormatGoProfile, path, fmt.Errorf("missing mode header"))
			}
			continue
		}
		m := profileLineRe.FindStringSubmatch(line)
		if m == nil {
			return nil, parseError(FormatGoProfile, path, fmt.Errorf("malformed block on line %d", lineNo))
		}
		start, _ := strconv.Atoi(m[2])
		end, _ := strconv.Atoi(m[4])
		count, _ := strconv.Atoi(m[7])

		lines := files[m[1]]
		if lines == nil {
			lines = make(FileCoverage)
			files[m[1]] = lines
		}
		for nr := start; nr <= end; nr++ {
			lines[nr] = lines[nr] || count > 0
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, parseError(FormatGoProfile, path, err)
	}

	return NewReport(files, goProfileResolver(files)), nil
}

// goProfileResolver maps repository paths onto the profile's
// import-path-qualified keys by unique suffix match.
func goProfileResolver(files map[string]FileCoverage) func(string) (string, bool) {
	return func(path string) (string, bool) {
		if !strings.HasSuffix(path, ".go") {
			return "", false
		}
		if _, ok := files[path]; ok {
			return path, true
		}
		match := ""
		for key := range files {
			if strings.HasSuffix(key, "/"+path) {
				if match != "" {
					return path, true
				}
				match = key
			}
		}
		if match != "" {
			return match, true
		}
		return path, true
	}
}
