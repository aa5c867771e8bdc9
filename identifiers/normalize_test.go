package identifiers

import (
	"errors"
	"strings"
	"testing"

	"asinpusher/types"

	"github.com/google/go-cmp/cmp"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		name string
		line string
		want types.Record
	}{
		{"site at id", "us@B0CXCPTW7G", types.Record{Site: "US", ID: "B0CXCPTW7G"}},
		{"comma", "B0CXCPTW7H,UK", types.Record{Site: "UK", ID: "B0CXCPTW7H"}},
		{"tab", "B0CXCPTW7I\tde", types.Record{Site: "DE", ID: "B0CXCPTW7I"}},
		{"space", "B08HBSRFK2 US", types.Record{Site: "US", ID: "B08HBSRFK2"}},
		{"bare id defaults to US", "  b0dw8mqfd7  ", types.Record{Site: "US", ID: "B0DW8MQFD7"}},
		{"extra spaces around site", "B0DW8MQFD7   JP ", types.Record{Site: "JP", ID: "B0DW8MQFD7"}},
		{"trailing comment", "B08HBSRFK2 US # lamp", types.Record{Site: "US", ID: "B08HBSRFK2"}},
		{"comment after comma form", "B0CXCPTW7H,uk  #kettle", types.Record{Site: "UK", ID: "B0CXCPTW7H"}},
		{"comment after bare id", "B0DW8MQFD7\t# restock", types.Record{Site: "US", ID: "B0DW8MQFD7"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseLine(c.line)
			if err != nil {
				t.Fatalf("ParseLine(%q) error: %v", c.line, err)
			}
			if got != c.want {
				t.Fatalf("ParseLine(%q) = %+v; want %+v", c.line, got, c.want)
			}
		})
	}
}

func TestParseLineRejectsMalformed(t *testing.T) {
	cases := []string{
		"B0SHORT",
		"B0CXCPTW7G-X US",
		"@B0CXCPTW7G",
		"US@",
		"B0CXCPTW7G U5",
		"B0CXCPTW7G TOOLONG",
	}
	for _, line := range cases {
		if _, err := ParseLine(line); err == nil {
			t.Fatalf("ParseLine(%q) expected error", line)
		}
	}
}

func TestParseDeduplicatesAndKeepsOrder(t *testing.T) {
	input := strings.Join([]string{
		"# batch 1",
		"B08HBSRFK2 US",
		"",
		"UK@B0DW8MQFD7",
		"us@b08hbsrfk2",
		"B0DW8MQFD7,UK",
		"B0DW8MQFD7 DE",
		"   ",
	}, "\n")

	res, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	want := []types.Record{
		{Site: "US", ID: "B08HBSRFK2"},
		{Site: "UK", ID: "B0DW8MQFD7"},
		{Site: "DE", ID: "B0DW8MQFD7"},
	}
	if diff := cmp.Diff(want, res.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if res.Duplicates != 2 {
		t.Fatalf("Duplicates = %d; want 2", res.Duplicates)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected format errors: %v", res.Errors)
	}
}

func TestParseCollectsFormatErrors(t *testing.T) {
	input := "B08HBSRFK2 US\nnot-an-asin\nB0DW8MQFD7 UK\n"

	res, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records; want 2", len(res.Records))
	}
	if len(res.Errors) != 1 {
		t.Fatalf("got %d format errors; want 1", len(res.Errors))
	}

	var fe *FormatError
	if !errors.As(res.Errors[0], &fe) {
		t.Fatalf("expected *FormatError, got %T", res.Errors[0])
	}
	if fe.Line != 2 {
		t.Fatalf("FormatError.Line = %d; want 2", fe.Line)
	}
}

func TestParseNoDuplicatePairs(t *testing.T) {
	var b strings.Builder
	ids := []string{"B000000001", "B000000002", "B000000003"}
	sites := []string{"US", "UK"}
	for round := 0; round < 3; round++ {
		for _, id := range ids {
			for _, site := range sites {
				b.WriteString(site + "@" + id + "\n")
			}
		}
	}

	res, err := Parse(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	seen := make(map[string]bool)
	for _, r := range res.Records {
		if seen[r.Key()] {
			t.Fatalf("duplicate record %s in output", r)
		}
		seen[r.Key()] = true
	}
	if len(res.Records) != len(ids)*len(sites) {
		t.Fatalf("got %d records; want %d", len(res.Records), len(ids)*len(sites))
	}
	if res.Records[0] != (types.Record{Site: "US", ID: "B000000001"}) {
		t.Fatalf("first record = %v; want US@B000000001", res.Records[0])
	}
}
