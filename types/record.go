package types

import "fmt"

// DefaultSite is used when an input line carries only an identifier.
const DefaultSite = "US"

// Record is a product identifier scoped to a marketplace site.
type Record struct {
	Site string `json:"site"`
	ID   string `json:"identifier"`
}

// Key returns the uniqueness key for the record within a batch.
func (r Record) Key() string {
	return r.Site + "@" + r.ID
}

// Token renders the record in the SITE@ID form consumed by the crawler queue.
func (r Record) Token() string {
	return r.Key()
}

// FileStem renders the SITE-ID stem used for export artifacts.
func (r Record) FileStem() string {
	return r.Site + "-" + r.ID
}

func (r Record) String() string {
	return fmt.Sprintf("%s@%s", r.Site, r.ID)
}

// Tokens renders a batch of records as queue tokens, preserving order.
func Tokens(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Token())
	}
	return out
}
