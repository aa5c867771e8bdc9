package identifiers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"asinpusher/types"
)

var (
	idPattern   = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	sitePattern = regexp.MustCompile(`^[A-Z]{2,3}$`)
)

// FormatError reports an input line that could not be turned into a record.
// It is fatal for that line only.
type FormatError struct {
	Line   int
	Text   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d %q: %s", e.Line, e.Text, e.Reason)
}

// Result holds the records parsed from an input plus the lines that were rejected.
type Result struct {
	Records    []types.Record
	Duplicates int
	Errors     []*FormatError
}

// Parse reads one identifier per line and returns the unique records in first-seen order.
// Empty lines and lines starting with '#' are ignored. Malformed lines are collected in
// Result.Errors and do not stop parsing; only read failures are returned as error.
func Parse(r io.Reader) (*Result, error) {
	res := &Result{}
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, err := ParseLine(line)
		if err != nil {
			res.Errors = append(res.Errors, &FormatError{Line: lineNum, Text: line, Reason: err.Error()})
			continue
		}

		if _, dup := seen[rec.Key()]; dup {
			res.Duplicates++
			continue
		}
		seen[rec.Key()] = struct{}{}
		res.Records = append(res.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read identifiers: %w", err)
	}
	return res, nil
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identifier file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// ParseLine accepts SITE@ID, ID,SITE, ID<TAB>SITE, "ID SITE" or a bare ID.
// Anything after a '#' is a comment.
func ParseLine(line string) (types.Record, error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	var site, id string
	switch {
	case strings.Contains(line, "@"):
		parts := strings.SplitN(line, "@", 2)
		site, id = parts[0], parts[1]
	default:
		site = types.DefaultSite
		id = line
		for _, sep := range []string{",", "\t", " "} {
			if strings.Contains(line, sep) {
				parts := strings.SplitN(line, sep, 2)
				id, site = parts[0], parts[1]
				break
			}
		}
	}

	site = strings.ToUpper(strings.TrimSpace(site))
	id = strings.ToUpper(strings.TrimSpace(id))

	if id == "" {
		return types.Record{}, fmt.Errorf("missing identifier")
	}
	if site == "" {
		return types.Record{}, fmt.Errorf("missing site")
	}
	if !idPattern.MatchString(id) {
		return types.Record{}, fmt.Errorf("identifier %q must be 10 alphanumeric characters", id)
	}
	if !sitePattern.MatchString(site) {
		return types.Record{}, fmt.Errorf("site %q must be a 2-3 letter marketplace code", site)
	}
	return types.Record{Site: site, ID: id}, nil
}
