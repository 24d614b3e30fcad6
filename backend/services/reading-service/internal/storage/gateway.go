package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sensorhub/backend/libs/db"
	"sensorhub/backend/services/reading-service/internal/schema"
)

var errNoFields = errors.New("no fields to insert")

// Conn is the subset of *pgx.Conn used by the gateway.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
	IsClosed() bool
}

// DialFunc opens a new connection.
type DialFunc func(ctx context.Context, dsn string) (Conn, error)

// PgxDial dials through libs/db.
func PgxDial(ctx context.Context, dsn string) (Conn, error) {
	conn, err := db.Dial(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Gateway owns the single database connection. Every method holds mu for its whole duration
// because the connection is not safe for concurrent use.
type Gateway struct {
	mu     sync.Mutex
	conn   Conn
	dial   DialFunc
	params schema.ConnectionParams
	desc   *schema.Descriptor
	logger *zap.Logger
}

// NewGateway builds a gateway. A nil dial uses PgxDial.
func NewGateway(desc *schema.Descriptor, params schema.ConnectionParams, dial DialFunc, logger *zap.Logger) *Gateway {
	if dial == nil {
		dial = PgxDial
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		dial:   dial,
		params: params,
		desc:   desc,
		logger: logger.Named("storage"),
	}
}

// Connect opens the connection unless it is already open.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectLocked(ctx)
}

// Connected reports whether a live connection is held.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openLocked()
}

// Disconnect closes the connection. Calling it on a closed gateway is a no-op.
func (g *Gateway) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil
	}
	conn := g.conn
	g.conn = nil
	if conn.IsClosed() {
		g.logger.Debug("database connection already closed")
		return nil
	}
	if err := conn.Close(ctx); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	g.logger.Info("database connection closed")
	return nil
}

// ProvisionSchema creates every declared table that does not exist yet. A failing table does
// not stop the others; the returned *SchemaError names all failed tables.
func (g *Gateway) ProvisionSchema(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureConnectedLocked(ctx); err != nil {
		return err
	}

	var (
		failed []string
		errs   error
	)
	for _, table := range g.desc.Tables() {
		stmt := CreateTableStatement(table)
		g.logger.Debug("provisioning table", zap.String("table", table.Name), zap.String("sql", stmt))
		if _, err := g.conn.Exec(ctx, stmt); err != nil {
			g.logger.Warn("failed to provision table", zap.String("table", table.Name), zap.Error(err))
			failed = append(failed, table.Name)
			errs = multierr.Append(errs, fmt.Errorf("table %s: %w", table.Name, err))
			continue
		}
		g.logger.Info("table ready", zap.String("table", table.Name))
	}

	if len(failed) > 0 {
		return &SchemaError{Failed: failed, Err: errs}
	}
	return nil
}

// Insert writes one row. Table and column names must be declared in the schema descriptor;
// values are only ever passed as bound arguments.
func (g *Gateway) Insert(ctx context.Context, table string, fields map[string]any) error {
	def, ok := g.desc.Table(table)
	if !ok {
		return &UnknownTableError{Table: table}
	}
	if len(fields) == 0 {
		return &InsertError{Table: table, Cause: errNoFields}
	}

	columns := make([]string, 0, len(fields))
	for name := range fields {
		if !def.HasColumn(name) {
			return &UnknownColumnError{Table: table, Column: name}
		}
		columns = append(columns, name)
	}
	sort.Strings(columns)

	args := make([]any, len(columns))
	for i, name := range columns {
		args[i] = fields[name]
	}
	stmt := InsertStatement(table, columns)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureConnectedLocked(ctx); err != nil {
		return err
	}

	g.logger.Debug("executing insert", zap.String("table", table), zap.String("sql", stmt))
	if _, err := g.conn.Exec(ctx, stmt, args...); err != nil {
		return &InsertError{Table: table, Cause: err}
	}
	return nil
}

// CreateTableStatement renders the create-if-absent DDL for a table, prefixed by the generated key.
func CreateTableStatement(table schema.Table) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(pgx.Identifier{table.Name}.Sanitize())
	b.WriteString(" (")
	b.WriteString(schema.ReservedColumn)
	b.WriteString(" SERIAL PRIMARY KEY")
	for _, col := range table.Columns {
		b.WriteString(", ")
		b.WriteString(pgx.Identifier{col.Name}.Sanitize())
		b.WriteString(" ")
		b.WriteString(col.Type)
	}
	b.WriteString(")")
	return b.String()
}

// InsertStatement renders a parameterized insert for the given columns.
func InsertStatement(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
}

func (g *Gateway) openLocked() bool {
	return g.conn != nil && !g.conn.IsClosed()
}

func (g *Gateway) connectLocked(ctx context.Context) error {
	if g.openLocked() {
		return nil
	}
	g.conn = nil

	conn, err := g.dial(ctx, g.params.DSN)
	if err != nil {
		g.logger.Warn("database connection failed", zap.Error(err))
		return &ConnectionError{Cause: err}
	}
	g.conn = conn
	g.logger.Info("database connection established")
	return nil
}

func (g *Gateway) ensureConnectedLocked(ctx context.Context) error {
	if g.openLocked() {
		return nil
	}
	g.logger.Info("database not connected, reconnecting")
	return g.connectLocked(ctx)
}
