package covreport

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// JaCoCoHTMLReader scrapes aggregate instruction counts from the Total
// row of a JaCoCo index.html page. The page has no per-line detail, so
// this reader only serves overall-coverage checks.
type JaCoCoHTMLReader struct{}

var jacocoTotalRe = regexp.MustCompile(`<td>Total</td><td class="bar">([0-9,]+) of ([0-9,]+)</td>`)

// ReadTotal returns the covered and total instruction counts from the
// report's Total row. Counts above three digits carry thousands
// separators in the page; those are stripped before parsing.
func (r *JaCoCoHTMLReader) ReadTotal(path string) (covered, total int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, parseError(FormatJaCoCoHTML, path, err)
	}

	m := jacocoTotalRe.FindStringSubmatch(string(data))
	if m == nil {
		return 0, 0, parseError(FormatJaCoCoHTML, path, fmt.Errorf("no Total row found"))
	}
	missed, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, 0, parseError(FormatJaCoCoHTML, path, fmt.Errorf("failed to parse missed count: %w", err))
	}
	total, err = strconv.Atoi(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return 0, 0, parseError(FormatJaCoCoHTML, path, fmt.Errorf("failed to parse total count: %w", err))
	}
	return total - missed, total, nil
}
