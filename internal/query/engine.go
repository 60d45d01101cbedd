// Package query runs read-only SQL over the cumulative dataset with an
// in-process DuckDB database.
package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/marcboeker/go-duckdb"
)

// TableName is the table questions are answered against.
const TableName = "trials"

// DefaultMaxRows caps the rows returned by a query.
const DefaultMaxRows = 200

// Result is the output of a query.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

// Engine holds an in-memory DuckDB database with the dataset loaded as TableName.
type Engine struct {
	db      *sql.DB
	maxRows int
	logger  *slog.Logger

	mu     sync.RWMutex
	loaded string
}

// Open creates an empty in-memory engine.
func Open(maxRows int) (*Engine, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	// Settings are global to the database and locked afterwards, so they are
	// applied by the first connection only.
	var (
		initMu     sync.Mutex
		configured bool
	)
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		initMu.Lock()
		defer initMu.Unlock()
		if configured {
			return nil
		}
		// The table is appended through the driver, so queries never need files,
		// extensions or network. lock_configuration must come last.
		settings := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=2",
			"SET enable_external_access=false",
			"SET autoinstall_known_extensions=false",
			"SET autoload_known_extensions=false",
			"SET lock_configuration=true",
		}
		for _, setting := range settings {
			if _, err := execer.ExecContext(context.Background(), setting, nil); err != nil {
				return fmt.Errorf("failed to apply %q: %w", setting, err)
			}
		}
		configured = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	return &Engine{
		db:      sql.OpenDB(connector),
		maxRows: maxRows,
		logger:  slog.Default().With("component", "query-engine"),
	}, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Load replaces TableName with table. tag identifies the dataset version; a
// repeated tag is a no-op.
func (e *Engine) Load(ctx context.Context, table *dataset.Table, tag string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tag != "" && tag == e.loaded {
		return nil
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+TableName); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	if _, err := conn.ExecContext(ctx, createStatement(table.Columns)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	err = conn.Raw(func(driverConn any) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}
		appender, err := duckdb.NewAppenderFromConn(dConn, "", TableName)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		values := make([]driver.Value, len(table.Columns))
		for i, row := range table.Rows {
			for j := range values {
				values[j] = cellValue(table.Columns[j].Type, row[j])
			}
			if err := appender.AppendRow(values...); err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		e.loaded = ""
		return err
	}

	e.loaded = tag
	e.logger.Debug("Loaded dataset into query engine.", "rows", len(table.Rows), "columns", len(table.Columns), "tag", tag)
	return nil
}

// Query runs a guarded read-only statement and returns at most maxRows rows.
func (e *Engine) Query(ctx context.Context, statement string) (*Result, error) {
	stmt, err := Guard(statement)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) == e.maxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return res, nil
}

func createStatement(columns []dataset.Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = QuoteIdent(c.Name) + " " + SQLType(c.Type)
	}
	return "CREATE TABLE " + TableName + " (" + strings.Join(defs, ", ") + ")"
}

// SQLType maps a column type onto the DuckDB type used for it.
func SQLType(t dataset.ColumnType) string {
	switch t {
	case dataset.TypeNumber:
		return "DOUBLE"
	case dataset.TypeBool:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

// QuoteIdent quotes a column name such as "eligibility.gender".
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func cellValue(t dataset.ColumnType, v any) driver.Value {
	if v == nil {
		return nil
	}
	switch t {
	case dataset.TypeNumber:
		if f, ok := v.(float64); ok {
			return f
		}
	case dataset.TypeBool:
		if b, ok := v.(bool); ok {
			return b
		}
	case dataset.TypeString:
		if s, ok := v.(string); ok {
			return s
		}
	}
	return nil
}
