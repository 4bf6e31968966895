package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type beginFunc func(ctx context.Context) (pgx.Tx, error)

func (f beginFunc) Begin(ctx context.Context) (pgx.Tx, error) { return f(ctx) }

type txStub struct {
	execErr   error
	execErrAt int
	execTags  []pgconn.CommandTag
	execSQL   []string
	execArgs  [][]any
	row       pgx.Row
	rows      []*stubRows
	queryErr  error
	commitErr error
	committed bool
}

func (t *txStub) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *txStub) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}
func (t *txStub) Rollback(context.Context) error { return nil }
func (t *txStub) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *txStub) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return fakeBatchResults{} }
func (t *txStub) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *txStub) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *txStub) Conn() *pgx.Conn { return nil }

func (t *txStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execSQL = append(t.execSQL, sql)
	t.execArgs = append(t.execArgs, args)
	n := len(t.execSQL)
	if t.execErr != nil && (t.execErrAt == 0 || t.execErrAt == n) {
		return pgconn.CommandTag{}, t.execErr
	}
	if n <= len(t.execTags) {
		return t.execTags[n-1], nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *txStub) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	if len(t.rows) == 0 {
		return &stubRows{}, nil
	}
	r := t.rows[0]
	t.rows = t.rows[1:]
	return r, nil
}

func (t *txStub) QueryRow(context.Context, string, ...any) pgx.Row {
	if t.row != nil {
		return t.row
	}
	return stubRow{err: errors.New("row not mocked")}
}

type stubRows struct {
	data    [][]any
	idx     int
	scanErr error
	err     error
}

func (r *stubRows) Close()                        {}
func (r *stubRows) Err() error                    { return r.err }
func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription {
	return nil
}
func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}
func (r *stubRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assign(r.data[r.idx-1], dest)
}
func (r *stubRows) Values() ([]any, error) { return nil, nil }
func (r *stubRows) RawValues() [][]byte    { return nil }
func (r *stubRows) Conn() *pgx.Conn        { return nil }

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.vals, dest)
}

func assign(vals []any, dest []any) error {
	for i := range dest {
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		switch d := dest[i].(type) {
		case *string:
			*d = vals[i].(string)
		case *int64:
			*d = vals[i].(int64)
		case *bool:
			*d = vals[i].(bool)
		case *[]byte:
			*d = vals[i].([]byte)
		case *time.Time:
			*d = vals[i].(time.Time)
		case **time.Time:
			v := vals[i].(time.Time)
			*d = &v
		default:
			return fmt.Errorf("unsupported scan dest %T", dest[i])
		}
	}
	return nil
}

type fakeBatchResults struct{}

func (fakeBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, nil }
func (fakeBatchResults) Query() (pgx.Rows, error)         { return &stubRows{}, nil }
func (fakeBatchResults) QueryRow() pgx.Row                { return stubRow{} }
func (fakeBatchResults) Close() error                     { return nil }
