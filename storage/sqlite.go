package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/SUNET/ais-data-relay/errors"
)

// Mode constants for Open
const (
	ModeHistory  = "history"
	ModeSnapshot = "snapshot"
)

const defaultPoolSize = 4

// Open creates a Gateway for the given database path and mode. The parent
// directory is created if missing. Init must be called before use.
func Open(path, mode string) (Gateway, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WrapFatal(err, "storage", "Open", "create database directory")
	}

	pool, err := openPool(path, defaultPoolSize)
	if err != nil {
		return nil, err
	}

	base := sqliteStore{pool: pool, path: path}
	switch mode {
	case ModeHistory:
		return &historyStore{sqliteStore: base}, nil
	case ModeSnapshot:
		return &snapshotStore{sqliteStore: base}, nil
	default:
		_ = pool.Close()
		return nil, errors.WrapFatal(
			fmt.Errorf("unknown storage mode: %q", mode),
			"storage", "Open", "select implementation")
	}
}

// openPool opens a connection pool with the standard pragmas applied to
// every connection
func openPool(path string, poolSize int) (*sqlitex.Pool, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			pragmas := []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
				"PRAGMA cache_size=-64000",
				"PRAGMA temp_store=MEMORY",
				"PRAGMA foreign_keys=ON",
			}
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("%s: %w", pragma, err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "storage", "openPool", "open sqlite pool")
	}
	return pool, nil
}

// sqliteStore holds the parts shared by both gateway implementations
type sqliteStore struct {
	pool *sqlitex.Pool
	path string
}

func (s *sqliteStore) Path() string {
	return s.path
}

func (s *sqliteStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return errors.WrapTransient(err, "storage", "Close", "close sqlite pool")
	}
	return nil
}

// initSchema applies a schema script on one pooled connection
func (s *sqliteStore) initSchema(ctx context.Context, schema string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return errors.WrapTransient(err, "storage", "Init", "take connection")
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return errors.WrapFatal(err, "storage", "Init", "create tables")
	}
	return nil
}

// queryRows runs a query and collects every row as text columns
func (s *sqliteStore) queryRows(ctx context.Context, query string, args []any) ([]string, [][]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "storage", "RecentRows", "take connection")
	}
	defer s.pool.Put(conn)

	stmt, _, err := conn.PrepareTransient(query)
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "storage", "RecentRows", "prepare query")
	}
	defer stmt.Finalize()

	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
			stmt.BindNull(i + 1)
		case string:
			stmt.BindText(i+1, v)
		case float64:
			stmt.BindFloat(i+1, v)
		case int64:
			stmt.BindInt64(i+1, v)
		case int:
			stmt.BindInt64(i+1, int64(v))
		default:
			return nil, nil, errors.WrapInvalid(
				fmt.Errorf("unsupported bind argument type %T", arg),
				"storage", "RecentRows", "bind query arguments")
		}
	}

	// Column names are known from the prepared statement, so an empty
	// result still yields the header the CSV exporter needs
	n := stmt.ColumnCount()
	cols := make([]string, n)
	for i := 0; i < n; i++ {
		cols[i] = stmt.ColumnName(i)
	}

	var rows [][]string
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, nil, errors.WrapTransient(err, "storage", "RecentRows", "query recent vessels")
		}
		if !hasRow {
			break
		}
		row := make([]string, n)
		for i := 0; i < n; i++ {
			if !stmt.ColumnIsNull(i) {
				row[i] = stmt.ColumnText(i)
			}
		}
		rows = append(rows, row)
	}
	return cols, rows, nil
}

// exec runs a single statement with arguments on a pooled connection
func (s *sqliteStore) exec(ctx context.Context, component, action, query string, args []any) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return errors.WrapTransient(err, component, action, "take connection")
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return errors.WrapTransient(err, component, action, "execute statement")
	}
	return nil
}

// ageInterval renders a maximum age as a sqlite datetime modifier
func ageInterval(maxAge time.Duration) string {
	minutes := int(maxAge.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("-%d minute", minutes)
}

// textArg converts an optional string into a bind argument, nil = NULL
func textArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// realArg converts an optional float into a bind argument, nil = NULL
func realArg(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
