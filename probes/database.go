package probes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"asinpusher/common"
	"asinpusher/config"
	"asinpusher/types"
)

// Database verification methods.
const (
	MethodExistence = "existence"
	MethodFreshness = "freshness"
	MethodStatus    = "status"
)

// DatabaseOptions names the table and columns written by the crawler and selects the
// predicate that means "done".
type DatabaseOptions struct {
	Table            string
	ASINColumn       string
	SiteColumn       string
	UpdateTimeColumn string
	StatusColumn     string
	DoneValue        string
	Method           string
	FreshnessWindow  time.Duration
	// Now is used by the freshness predicate; defaults to time.Now.
	Now func() time.Time
}

// DatabaseProbe checks the crawler result table for a record.
type DatabaseProbe struct {
	db     *common.DB
	opts   DatabaseOptions
	query  string
	method string
}

// NewDatabaseProbe validates opts and prepares the probe query. Invalid table or column
// names are reported as *config.ConfigError.
func NewDatabaseProbe(db *common.DB, opts DatabaseOptions) (*DatabaseProbe, error) {
	if db == nil {
		return nil, &config.ConfigError{Field: "database", Err: errors.New("database handle is nil")}
	}
	if opts.Method == "" {
		opts.Method = MethodExistence
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := checkIdentifiers(map[string]string{
		"database.status_table": opts.Table,
		"database.asin_field":   opts.ASINColumn,
		"database.site_field":   opts.SiteColumn,
	}); err != nil {
		return nil, err
	}

	var selectExpr, orderBy string
	switch opts.Method {
	case MethodExistence:
		selectExpr = "1"
	case MethodFreshness:
		if err := checkIdentifiers(map[string]string{"database.update_time_field": opts.UpdateTimeColumn}); err != nil {
			return nil, err
		}
		if opts.FreshnessWindow <= 0 {
			return nil, &config.ConfigError{Field: "database.freshness_window", Err: errors.New("must be positive")}
		}
		selectExpr = opts.UpdateTimeColumn
		orderBy = " ORDER BY " + opts.UpdateTimeColumn + " DESC"
	case MethodStatus:
		if err := checkIdentifiers(map[string]string{"database.status_field": opts.StatusColumn}); err != nil {
			return nil, err
		}
		if opts.DoneValue == "" {
			return nil, &config.ConfigError{Field: "database.done_value", Err: errors.New("must be set")}
		}
		selectExpr = opts.StatusColumn
	default:
		return nil, &config.ConfigError{Field: "database.verification_method", Err: fmt.Errorf("unsupported value %q", opts.Method)}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s = %s%s LIMIT 1",
		selectExpr, opts.Table,
		opts.ASINColumn, db.Dialect.Placeholder(1),
		opts.SiteColumn, db.Dialect.Placeholder(2),
		orderBy,
	)

	return &DatabaseProbe{db: db, opts: opts, query: query, method: opts.Method}, nil
}

// Name implements Probe.
func (p *DatabaseProbe) Name() string { return BackendDatabase }

// Check implements Probe.
func (p *DatabaseProbe) Check(ctx context.Context, rec types.Record) Result {
	var value any
	err := p.db.QueryRowContext(ctx, p.query, rec.ID, rec.Site).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound()
	}
	if err != nil {
		return Errored(&ProbeError{Backend: BackendDatabase, Record: rec, Err: err})
	}

	switch p.method {
	case MethodFreshness:
		updated, ok := asTime(value)
		if !ok {
			return Errored(&ProbeError{Backend: BackendDatabase, Record: rec, Err: fmt.Errorf("unreadable %s value %v", p.opts.UpdateTimeColumn, value)})
		}
		if updated.Before(p.opts.Now().Add(-p.opts.FreshnessWindow)) {
			return NotFound()
		}
		return Found(map[string]string{p.opts.UpdateTimeColumn: updated.UTC().Format(time.RFC3339)})
	case MethodStatus:
		status := asString(value)
		if status != p.opts.DoneValue {
			return NotFound()
		}
		return Found(map[string]string{p.opts.StatusColumn: status})
	default:
		return Found(nil)
	}
}

func checkIdentifiers(fields map[string]string) error {
	for field, name := range fields {
		if !config.ValidIdentifier(name) {
			return &config.ConfigError{Field: field, Err: fmt.Errorf("%q is not a valid SQL identifier", name)}
		}
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case int64:
		return time.Unix(t, 0), true
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
