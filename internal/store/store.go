// Package store persists customers in a relational database through sqlx. MySQL, PostgreSQL
// and SQLite are supported; all queries are written with '?' placeholders and rebound for the
// driver once, when the store is created.
package store

import (
	"bufio"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gitlab.com/dirk.krummacker/customers-service/internal/config"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed schema/*.sql
var schemaFiles embed.FS

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store is the SQL implementation of the customer store. It is safe for concurrent use.
type Store struct {
	db        *sqlx.DB
	returning bool // INSERT ... RETURNING id instead of LastInsertId
	q         queries
}

// New wraps an existing database handle. The handle can be a real database for production use or
// a mock database within unit tests; its driver name selects the SQL dialect.
func New(db *sqlx.DB) *Store {
	returning := sqlx.BindType(db.DriverName()) == sqlx.DOLLAR
	return &Store{
		db:        db,
		returning: returning,
		q:         newQueries(db, returning),
	}
}

// Open connects to the database described by cfg.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	var sqlDB *sql.DB
	var driverName string
	switch cfg.Driver {
	case config.DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = cfg.Address()
		mc.DBName = cfg.Name
		mc.ParseTime = true
		// Report matched instead of changed rows so that an update with identical values is not
		// mistaken for a missing row.
		mc.ClientFoundRows = true
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, fmt.Errorf("mysql config: %w", err)
		}
		sqlDB = sql.OpenDB(connector)
		driverName = "mysql"
	case config.DriverPostgres:
		pgCfg, err := pgx.ParseConfig(postgresURL(cfg))
		if err != nil {
			return nil, fmt.Errorf("postgres config: %w", err)
		}
		sqlDB = stdlib.OpenDB(*pgCfg)
		driverName = "pgx"
	case config.DriverSQLite:
		var err error
		sqlDB, err = sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite allows a single writer, and an in-memory database lives only as long as its
		// connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return New(sqlx.NewDb(sqlDB, driverName)), nil
}

func postgresURL(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Address(),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the customers table if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	file := "schema/" + dialect(s.db.DriverName()) + ".sql"
	f, err := schemaFiles.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()
	return s.ExecScript(ctx, f)
}

// ExecScript executes the SQL statements read from r. Statements end with a line containing ';'.
func (s *Store) ExecScript(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	builder := strings.Builder{}
	for scanner.Scan() {
		line := scanner.Text()
		builder.WriteString(line)
		builder.WriteString(" ")
		if strings.Contains(line, ";") {
			if _, err := s.db.ExecContext(ctx, builder.String()); err != nil {
				return fmt.Errorf("exec %q: %w", strings.TrimSpace(builder.String()), err)
			}
			builder.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if rest := strings.TrimSpace(builder.String()); rest != "" {
		if _, err := s.db.ExecContext(ctx, rest); err != nil {
			return fmt.Errorf("exec %q: %w", rest, err)
		}
	}
	return nil
}

// dialect maps a driver name to the name of its schema file.
func dialect(driverName string) string {
	switch {
	case sqlx.BindType(driverName) == sqlx.DOLLAR:
		return "postgres"
	case strings.HasPrefix(driverName, "sqlite"):
		return "sqlite"
	default:
		return "mysql"
	}
}
