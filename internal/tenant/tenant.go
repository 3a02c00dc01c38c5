// Package tenant provides the explicit tenant isolation boundary.
//
// Every storage operation in the pipeline runs inside a tenant-scoped
// transaction obtained from a Context. Isolation is enforced by threading
// the Context value through every call rather than by a session variable:
// a query cannot be issued without naming its tenant.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Context identifies the tenant an operation acts on behalf of.
type Context struct {
	TenantID string
}

// New validates a tenant identifier and returns a Context for it.
func New(tenantID string) (Context, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Context{}, errors.New("tenant id must not be empty")
	}
	return Context{TenantID: tenantID}, nil
}

// Tx is a tenant-scoped database transaction. It implements DBTX so stores
// can accept either a pool (for reads outside the pipeline) or a Tx.
type Tx struct {
	Context
	tx pgx.Tx
}

// NewTx wraps an already-open pgx transaction in a tenant scope. Callers
// that manage the transaction lifecycle themselves use this instead of
// Begin.
func NewTx(c Context, tx pgx.Tx) *Tx {
	return &Tx{Context: c, tx: tx}
}

// Begin opens a tenant-scoped transaction on the pool.
func (c Context) Begin(ctx context.Context, pool *pgxpool.Pool) (*Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, wrapStorageErr("begin transaction", err)
	}
	return &Tx{Context: c, tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return wrapStorageErr("commit", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return wrapStorageErr("rollback", err)
	}
	return nil
}

// Exec implements DBTX.
func (t *Tx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return t.tx.Exec(ctx, sql, args...)
}

// Query implements DBTX.
func (t *Tx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}

// QueryRow implements DBTX.
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

// CopyFrom exposes the pgx COPY protocol for bulk inserts.
func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return t.tx.CopyFrom(ctx, tableName, columnNames, rowSrc)
}

// WithTx runs fn inside a single tenant-scoped transaction, committing on
// success and rolling back on error. Exactly one pipeline-stage invocation
// belongs inside one WithTx call.
func (c Context) WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx *Tx) error) error {
	tx, err := c.Begin(ctx, pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// wrapStorageErr classifies pgx errors. Serialization failures and deadlocks
// become TransientStorageError so storage adapters can retry them; everything
// else passes through annotated with the operation.
func wrapStorageErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return &errs.TransientStorageError{Op: op, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
