package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensorhub/backend/services/reading-service/internal/schema"
)

type execCall struct {
	sql  string
	args []any
}

type fakeConn struct {
	mu       sync.Mutex
	calls    []execCall
	failOn   string
	execErr  error
	closed   bool
	closeErr error
}

func (f *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := make([]any, len(args))
	copy(copied, args)
	f.calls = append(f.calls, execCall{sql: sql, args: copied})

	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("syntax error near " + f.failOn)
	}
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeConn) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakeConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) setClosed(closed bool) {
	f.mu.Lock()
	f.closed = closed
	f.mu.Unlock()
}

func (f *fakeConn) execs() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]execCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	errs  []error
	dials int
	dsns  []string
}

// queue sets the outcome of upcoming dials in order; a nil error yields a fresh fakeConn.
func (d *fakeDialer) queue(errs ...error) {
	d.mu.Lock()
	d.errs = append(d.errs, errs...)
	d.mu.Unlock()
}

func (d *fakeDialer) dial(_ context.Context, dsn string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.dsns = append(d.dsns, dsn)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	conn := &fakeConn{}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func testDescriptor() *schema.Descriptor {
	return schema.NewDescriptor(
		schema.Table{Name: "sensor_data", Columns: []schema.Column{
			{Name: "temperature", Type: "REAL"},
			{Name: "humidity", Type: "REAL"},
			{Name: "note", Type: "TEXT"},
		}},
		schema.Table{Name: "broken", Columns: []schema.Column{
			{Name: "value", Type: "NOTATYPE"},
		}},
	)
}

func newTestGateway(t *testing.T) (*Gateway, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{}
	gw := NewGateway(testDescriptor(), schema.ConnectionParams{DSN: "postgres://test"}, dialer.dial, zap.NewNop())
	return gw, dialer
}

func TestConnectIsIdempotent(t *testing.T) {
	gw, dialer := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.Connect(ctx))
	require.NoError(t, gw.Connect(ctx))

	require.Equal(t, 1, dialer.count())
	require.Equal(t, []string{"postgres://test"}, dialer.dsns)
	require.True(t, gw.Connected())
}

func TestConnectFailureReturnsConnectionError(t *testing.T) {
	gw, dialer := newTestGateway(t)
	cause := errors.New("dial tcp: lookup db: no such host")
	dialer.queue(cause)

	err := gw.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnection)
	require.ErrorIs(t, err, cause)
	require.False(t, gw.Connected())
	require.Equal(t, 1, dialer.count())
}

func TestDisconnectIsSafeWhenClosed(t *testing.T) {
	gw, dialer := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.Disconnect(ctx))

	require.NoError(t, gw.Connect(ctx))
	conn := dialer.last()
	require.NoError(t, gw.Disconnect(ctx))
	require.True(t, conn.IsClosed())
	require.False(t, gw.Connected())
	require.NoError(t, gw.Disconnect(ctx))

	require.NoError(t, gw.Connect(ctx))
	require.Equal(t, 2, dialer.count())
}

func TestProvisionSchemaContinuesPastFailures(t *testing.T) {
	gw, dialer := newTestGateway(t)
	ctx := context.Background()
	require.NoError(t, gw.Connect(ctx))
	dialer.last().failOn = "NOTATYPE"

	err := gw.ProvisionSchema(ctx)
	require.ErrorIs(t, err, ErrSchema)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, []string{"broken"}, schemaErr.Failed)
	require.Contains(t, err.Error(), "NOTATYPE")

	calls := dialer.last().execs()
	require.Len(t, calls, 2)
	require.Equal(t,
		`CREATE TABLE IF NOT EXISTS "sensor_data" (id SERIAL PRIMARY KEY, "temperature" REAL, "humidity" REAL, "note" TEXT)`,
		calls[0].sql)
	require.Equal(t,
		`CREATE TABLE IF NOT EXISTS "broken" (id SERIAL PRIMARY KEY, "value" NOTATYPE)`,
		calls[1].sql)
}

func TestProvisionSchemaConnectsOnce(t *testing.T) {
	gw, dialer := newTestGateway(t)
	ctx := context.Background()

	dialer.queue(errors.New("connection refused"))
	err := gw.ProvisionSchema(ctx)
	require.ErrorIs(t, err, ErrConnection)
	require.Equal(t, 1, dialer.count())

	require.NoError(t, gw.ProvisionSchema(ctx))
	require.Equal(t, 2, dialer.count())
	require.Len(t, dialer.last().execs(), 2)
}

func TestInsertRejectsUnknownTargets(t *testing.T) {
	gw, dialer := newTestGateway(t)
	ctx := context.Background()

	err := gw.Insert(ctx, "users", map[string]any{"temperature": 1.0})
	require.ErrorIs(t, err, ErrUnknownTable)
	var tableErr *UnknownTableError
	require.ErrorAs(t, err, &tableErr)
	require.Equal(t, "users", tableErr.Table)

	err = gw.Insert(ctx, "sensor_data", map[string]any{"temperature": 1.0, "pressure": 990.0})
	require.ErrorIs(t, err, ErrUnknownColumn)

	err = gw.Insert(ctx, "sensor_data", map[string]any{})
	require.ErrorIs(t, err, ErrInsert)

	require.Zero(t, dialer.count())
}

func TestInsertBindsValuesAsArguments(t *testing.T) {
	gw, dialer := newTestGateway(t)
	ctx := context.Background()
	payload := `"; DROP TABLE x; --`

	err := gw.Insert(ctx, "sensor_data", map[string]any{
		"temperature": 21.5,
		"humidity":    40.0,
		"note":        payload,
	})
	require.NoError(t, err)

	calls := dialer.last().execs()
	require.Len(t, calls, 1)
	require.Equal(t, `INSERT INTO "sensor_data" ("humidity", "note", "temperature") VALUES ($1, $2, $3)`, calls[0].sql)
	require.NotContains(t, calls[0].sql, "DROP")
	require.Equal(t, []any{40.0, payload, 21.5}, calls[0].args)
}

func TestInsertReconnectsOnce(t *testing.T) {
	gw, dialer := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.Connect(ctx))
	dialer.last().setClosed(true)

	require.NoError(t, gw.Insert(ctx, "sensor_data", map[string]any{"temperature": 1.0}))
	require.Equal(t, 2, dialer.count())
	require.Len(t, dialer.last().execs(), 1)

	dialer.last().setClosed(true)
	dialer.queue(errors.New("password authentication failed"), errors.New("unreachable"))
	err := gw.Insert(ctx, "sensor_data", map[string]any{"temperature": 2.0})
	require.ErrorIs(t, err, ErrConnection)
	require.Contains(t, err.Error(), "password authentication failed")
	require.Equal(t, 3, dialer.count())
}

func TestInsertWrapsStatementFailure(t *testing.T) {
	gw, dialer := newTestGateway(t)
	ctx := context.Background()
	require.NoError(t, gw.Connect(ctx))

	cause := errors.New(`invalid input syntax for type real: "hot"`)
	dialer.last().execErr = cause

	err := gw.Insert(ctx, "sensor_data", map[string]any{"temperature": "hot"})
	require.ErrorIs(t, err, ErrInsert)
	require.ErrorIs(t, err, cause)
	require.Len(t, dialer.last().execs(), 1)
	require.Equal(t, 1, dialer.count())
}

func TestConcurrentInsertsShareOneConnection(t *testing.T) {
	gw, dialer := newTestGateway(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, gw.Insert(ctx, "sensor_data", map[string]any{"temperature": float64(i)}))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, dialer.count())
	require.Len(t, dialer.last().execs(), 32)
}
