package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"asinpusher/common"
	"asinpusher/config"
	"asinpusher/logging"
	"asinpusher/types"
)

// ErrRowNotFound is returned by Fetch when the database holds no row for a record.
var ErrRowNotFound = errors.New("row not found")

// Options names the source table and the destination directory.
type Options struct {
	Table      string
	ASINColumn string
	SiteColumn string
	// UpdateTimeColumn, when set, selects the most recently updated row for a record.
	UpdateTimeColumn string
	Dir              string
	Logger           *slog.Logger
}

// Artifact is the JSON document written for one verified record.
type Artifact struct {
	Site       string         `json:"site"`
	Identifier string         `json:"identifier"`
	Data       map[string]any `json:"data"`
}

// Summary lists what an export run produced.
type Summary struct {
	Written []string
	Missing []types.Record
	Failed  []types.Record
}

// Exporter writes one artifact per record from the crawler result table.
type Exporter struct {
	db     *common.DB
	opts   Options
	query  string
	logger *slog.Logger
}

// New validates opts. Invalid table or column names are reported as *config.ConfigError.
func New(db *common.DB, opts Options) (*Exporter, error) {
	if db == nil {
		return nil, &config.ConfigError{Field: "database", Err: errors.New("database handle is nil")}
	}
	for field, name := range map[string]string{
		"database.status_table": opts.Table,
		"database.asin_field":   opts.ASINColumn,
		"database.site_field":   opts.SiteColumn,
	} {
		if !config.ValidIdentifier(name) {
			return nil, &config.ConfigError{Field: field, Err: fmt.Errorf("%q is not a valid SQL identifier", name)}
		}
	}
	orderBy := ""
	if opts.UpdateTimeColumn != "" {
		if !config.ValidIdentifier(opts.UpdateTimeColumn) {
			return nil, &config.ConfigError{Field: "database.update_time_field", Err: fmt.Errorf("%q is not a valid SQL identifier", opts.UpdateTimeColumn)}
		}
		orderBy = " ORDER BY " + opts.UpdateTimeColumn + " DESC"
	}
	if opts.Dir == "" {
		opts.Dir = config.ResultDir
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s AND %s = %s%s LIMIT 1",
		opts.Table,
		opts.ASINColumn, db.Dialect.Placeholder(1),
		opts.SiteColumn, db.Dialect.Placeholder(2),
		orderBy,
	)
	return &Exporter{db: db, opts: opts, query: query, logger: logging.OrNop(opts.Logger)}, nil
}

// Dir returns the artifact directory.
func (e *Exporter) Dir() string { return e.opts.Dir }

// Path returns the artifact path for rec.
func (e *Exporter) Path(rec types.Record) string {
	return filepath.Join(e.opts.Dir, rec.FileStem()+".json")
}

// Export writes artifacts for records. Missing rows are logged and skipped; per-record
// failures do not stop the batch and are joined into the returned error.
func (e *Exporter) Export(ctx context.Context, records []types.Record) (Summary, error) {
	var summary Summary
	if len(records) == 0 {
		return summary, nil
	}
	if err := os.MkdirAll(e.opts.Dir, 0o755); err != nil {
		return summary, fmt.Errorf("exporter: ensure result dir: %w", err)
	}

	var errs []error
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		path, err := e.exportOne(ctx, rec)
		switch {
		case errors.Is(err, ErrRowNotFound):
			e.logger.WarnContext(ctx, "no database row to export", "record", rec.String())
			summary.Missing = append(summary.Missing, rec)
		case err != nil:
			e.logger.ErrorContext(ctx, "export failed", "record", rec.String(), "error", err)
			summary.Failed = append(summary.Failed, rec)
			errs = append(errs, err)
		default:
			e.logger.DebugContext(ctx, "exported record", "record", rec.String(), "path", path)
			summary.Written = append(summary.Written, path)
		}
	}

	e.logger.InfoContext(ctx, "export finished",
		"written", len(summary.Written),
		"missing", len(summary.Missing),
		"failed", len(summary.Failed),
		"dir", e.opts.Dir,
	)
	return summary, errors.Join(errs...)
}

func (e *Exporter) exportOne(ctx context.Context, rec types.Record) (string, error) {
	row, err := e.Fetch(ctx, rec)
	if err != nil {
		return "", err
	}
	payload, err := Encode(Artifact{Site: rec.Site, Identifier: rec.ID, Data: row})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", rec, err)
	}
	path := e.Path(rec)
	if err := writeFileAtomic(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rec, err)
	}
	return path, nil
}

// Fetch returns the full database row for rec keyed by column name.
func (e *Exporter) Fetch(ctx context.Context, rec types.Record) (map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, e.query, rec.ID, rec.Site)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", rec, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query %s: %w", rec, err)
		}
		return nil, ErrRowNotFound
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", rec, err)
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan %s: %w", rec, err)
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = jsonValue(values[i])
	}
	return row, nil
}

// Encode renders an artifact. Map keys are sorted by encoding/json, so identical rows
// always produce identical bytes.
func Encode(a Artifact) ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func jsonValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return t
	}
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
