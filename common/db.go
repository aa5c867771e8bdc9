package common

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DialContextFunc opens a network connection, e.g. through an SSH tunnel.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DBConfig contains the settings needed to open the crawler result database.
type DBConfig struct {
	Driver       string // mysql, postgres or sqlite
	DSN          string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	MaxOpenConns int
	// Dial, when set, replaces direct TCP dialing for mysql and postgres.
	Dial DialContextFunc
}

// Dialect captures the SQL differences between supported drivers.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// DB is a pooled database handle plus the dialect its queries must use.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// WrapDB pairs an already opened handle with its dialect.
func WrapDB(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, Dialect: dialect}
}

var tunnelNetSeq atomic.Uint64

// registerMySQLDial registers dial under a network name unique to this call, so
// handles opened through different tunnels never share a dialer.
func registerMySQLDial(dial DialContextFunc) string {
	name := fmt.Sprintf("asinpusher-tunnel-%d", tunnelNetSeq.Add(1))
	mysql.RegisterDialContext(name, func(ctx context.Context, addr string) (net.Conn, error) {
		return dial(ctx, "tcp", addr)
	})
	return name
}

// OpenDB opens and pings the database described by cfg.
func OpenDB(ctx context.Context, cfg DBConfig) (*DB, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)

	switch cfg.Driver {
	case "mysql":
		dialect = DialectMySQL
		db, err = openMySQL(cfg)
	case "postgres":
		dialect = DialectPostgres
		db, err = openPostgres(cfg)
	case "sqlite":
		dialect = DialectSQLite
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Name
		}
		db, err = sql.Open("sqlite", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Driver, err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

func openMySQL(cfg DBConfig) (*sql.DB, error) {
	var mc *mysql.Config
	if cfg.DSN != "" {
		parsed, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		mc = parsed
	} else {
		mc = mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(defaultPort(cfg.Port, 3306)))
		mc.DBName = cfg.Name
		mc.Params = map[string]string{"charset": "utf8mb4"}
	}
	mc.ParseTime = true

	if cfg.Dial != nil {
		mc.Net = registerMySQLDial(cfg.Dial)
	}

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

func openPostgres(cfg DBConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(defaultPort(cfg.Port, 5432))),
			Path:   "/" + cfg.Name,
		}
		dsn = u.String()
	}

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.Dial != nil {
		dial := cfg.Dial
		connCfg.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dial(ctx, network, addr)
		}
	}
	return stdlib.OpenDB(*connCfg), nil
}

func defaultPort(port, fallback int) int {
	if port <= 0 {
		return fallback
	}
	return port
}
