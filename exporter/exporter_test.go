package exporter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"asinpusher/common"
	"asinpusher/config"
	"asinpusher/types"

	"github.com/google/go-cmp/cmp"
)

func newTestExporter(t *testing.T) *Exporter {
	t.Helper()
	dir := t.TempDir()
	db, err := common.OpenDB(context.Background(), common.DBConfig{
		Driver: "sqlite",
		Name:   filepath.Join(dir, "crawl.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE asin_details (asin TEXT, site TEXT, title TEXT, price REAL, reviews INTEGER)`,
		`INSERT INTO asin_details VALUES ('B08HBSRFK2', 'US', 'Desk Lamp', 19.99, 120)`,
		`INSERT INTO asin_details VALUES ('B0DW8MQFD7', 'UK', 'Kettle', 24.5, 8)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}

	exp, err := New(db, Options{
		Table:      "asin_details",
		ASINColumn: "asin",
		SiteColumn: "site",
		Dir:        filepath.Join(dir, "result"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return exp
}

func TestExportWritesOneArtifactPerRecord(t *testing.T) {
	exp := newTestExporter(t)
	records := []types.Record{{Site: "US", ID: "B08HBSRFK2"}, {Site: "UK", ID: "B0DW8MQFD7"}}

	summary, err := exp.Export(context.Background(), records)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := []string{
		filepath.Join(exp.Dir(), "US-B08HBSRFK2.json"),
		filepath.Join(exp.Dir(), "UK-B0DW8MQFD7.json"),
	}
	if diff := cmp.Diff(want, summary.Written); diff != "" {
		t.Fatalf("written (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(want[0])
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	expected := `{
  "site": "US",
  "identifier": "B08HBSRFK2",
  "data": {
    "asin": "B08HBSRFK2",
    "price": 19.99,
    "reviews": 120,
    "site": "US",
    "title": "Desk Lamp"
  }
}
`
	if diff := cmp.Diff(expected, string(data)); diff != "" {
		t.Fatalf("artifact (-want +got):\n%s", diff)
	}
}

func TestExportIsByteStable(t *testing.T) {
	exp := newTestExporter(t)
	rec := types.Record{Site: "UK", ID: "B0DW8MQFD7"}

	if _, err := exp.Export(context.Background(), []types.Record{rec}); err != nil {
		t.Fatalf("first export: %v", err)
	}
	first, err := os.ReadFile(exp.Path(rec))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := exp.Export(context.Background(), []types.Record{rec}); err != nil {
		t.Fatalf("second export: %v", err)
	}
	second, err := os.ReadFile(exp.Path(rec))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("artifacts differ:\n%s\n---\n%s", first, second)
	}

	entries, err := os.ReadDir(exp.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("result dir has %d entries; temp files must not remain", len(entries))
	}
}

func TestExportSkipsMissingRows(t *testing.T) {
	exp := newTestExporter(t)
	missing := types.Record{Site: "DE", ID: "B000000000"}

	summary, err := exp.Export(context.Background(), []types.Record{missing})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(summary.Written) != 0 {
		t.Fatalf("written = %v; want none", summary.Written)
	}
	if diff := cmp.Diff([]types.Record{missing}, summary.Missing); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(exp.Path(missing)); !os.IsNotExist(err) {
		t.Fatalf("artifact exists for missing row: %v", err)
	}

	if _, err := exp.Fetch(context.Background(), missing); !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("Fetch = %v; want ErrRowNotFound", err)
	}
}

func TestNewRejectsBadIdentifiers(t *testing.T) {
	db := common.WrapDB(nil, common.DialectMySQL)
	_, err := New(db, Options{Table: "asin_details", ASINColumn: "asin`--", SiteColumn: "site"})
	var ce *config.ConfigError
	if !errors.As(err, &ce) || ce.Field != "database.asin_field" {
		t.Fatalf("expected ConfigError on database.asin_field, got %v", err)
	}
}

func TestExportPicksNewestRow(t *testing.T) {
	dir := t.TempDir()
	db, err := common.OpenDB(context.Background(), common.DBConfig{
		Driver: "sqlite",
		Name:   filepath.Join(dir, "crawl.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// The stale row is inserted last so insertion order cannot pick the right one.
	for _, s := range []string{
		`CREATE TABLE asin_details (asin TEXT, site TEXT, title TEXT, update_time TEXT)`,
		`INSERT INTO asin_details VALUES ('B08HBSRFK2', 'US', 'Desk Lamp v2', '2026-10-16 10:00:00')`,
		`INSERT INTO asin_details VALUES ('B08HBSRFK2', 'US', 'Desk Lamp v1', '2026-10-01 10:00:00')`,
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}

	exp, err := New(db, Options{
		Table:            "asin_details",
		ASINColumn:       "asin",
		SiteColumn:       "site",
		UpdateTimeColumn: "update_time",
		Dir:              filepath.Join(dir, "result"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := types.Record{Site: "US", ID: "B08HBSRFK2"}

	var previous []byte
	for i := 0; i < 2; i++ {
		if _, err := exp.Export(context.Background(), []types.Record{rec}); err != nil {
			t.Fatalf("export %d: %v", i, err)
		}
		data, err := os.ReadFile(exp.Path(rec))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Contains(data, []byte(`"title": "Desk Lamp v2"`)) {
			t.Fatalf("export %d wrote a stale row:\n%s", i, data)
		}
		if previous != nil && !bytes.Equal(previous, data) {
			t.Fatalf("artifacts differ between exports:\n%s\n---\n%s", previous, data)
		}
		previous = data
	}
}

func TestNewRejectsBadUpdateTimeColumn(t *testing.T) {
	db := common.WrapDB(nil, common.DialectSQLite)
	_, err := New(db, Options{Table: "asin_details", ASINColumn: "asin", SiteColumn: "site", UpdateTimeColumn: "updated at"})
	var ce *config.ConfigError
	if !errors.As(err, &ce) || ce.Field != "database.update_time_field" {
		t.Fatalf("expected ConfigError on database.update_time_field, got %v", err)
	}
}
