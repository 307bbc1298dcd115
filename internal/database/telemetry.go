package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const dbTracerName = "github.com/irfndi/celebrum-regime/internal/database"

// TracedPool wraps a DatabasePool and opens a client span around every statement.
type TracedPool struct {
	pool   DatabasePool
	tracer trace.Tracer
}

// NewTracedPool wraps pool. A nil tracer falls back to the global provider.
func NewTracedPool(pool DatabasePool, tracer trace.Tracer) *TracedPool {
	if tracer == nil {
		tracer = otel.Tracer(dbTracerName)
	}
	return &TracedPool{pool: pool, tracer: tracer}
}

func startDBSpan(ctx context.Context, tracer trace.Tracer, name, sql string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", sqlOperation(sql)),
			attribute.String("db.statement", strings.TrimSpace(sql)),
		),
	)
}

// sqlOperation returns the leading keyword of a statement.
func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func endDBSpan(span trace.Span, err error) {
	if err != nil {
		RecordDatabaseError(span, err)
	}
	span.End()
}

// RecordDatabaseError marks span as failed.
func RecordDatabaseError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Query executes a query
func (p *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := startDBSpan(ctx, p.tracer, "db.Query", sql)
	rows, err := p.pool.Query(ctx, sql, args...)
	endDBSpan(span, err)
	return rows, err
}

// QueryRow executes a query that returns a single row.
// The span covers dispatch only; scan errors surface to the caller.
func (p *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := startDBSpan(ctx, p.tracer, "db.QueryRow", sql)
	row := p.pool.QueryRow(ctx, sql, args...)
	span.End()
	return row
}

// Exec executes a query without returning rows
func (p *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := startDBSpan(ctx, p.tracer, "db.Exec", sql)
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	endDBSpan(span, err)
	return tag, err
}

// Begin starts a transaction whose statements are traced as well.
func (p *TracedPool) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := p.tracer.Start(ctx, "db.Begin", trace.WithSpanKind(trace.SpanKindClient))
	tx, err := p.pool.Begin(ctx)
	endDBSpan(span, err)
	if err != nil {
		return nil, err
	}
	return &TracedTx{Tx: tx, tracer: p.tracer}, nil
}

// TracedTx wraps a database transaction
type TracedTx struct {
	pgx.Tx
	tracer trace.Tracer
}

// Query executes a query within the transaction
func (tx *TracedTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := startDBSpan(ctx, tx.tracer, "db.Tx.Query", sql)
	rows, err := tx.Tx.Query(ctx, sql, args...)
	endDBSpan(span, err)
	return rows, err
}

// QueryRow executes a query that returns a single row within the transaction
func (tx *TracedTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := startDBSpan(ctx, tx.tracer, "db.Tx.QueryRow", sql)
	row := tx.Tx.QueryRow(ctx, sql, args...)
	span.End()
	return row
}

// Exec executes a query without returning rows within the transaction
func (tx *TracedTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := startDBSpan(ctx, tx.tracer, "db.Tx.Exec", sql)
	tag, err := tx.Tx.Exec(ctx, sql, args...)
	endDBSpan(span, err)
	return tag, err
}

// Commit commits the transaction
func (tx *TracedTx) Commit(ctx context.Context) error {
	ctx, span := tx.tracer.Start(ctx, "db.Tx.Commit", trace.WithSpanKind(trace.SpanKindClient))
	err := tx.Tx.Commit(ctx)
	endDBSpan(span, err)
	return err
}

// Rollback rolls back the transaction
func (tx *TracedTx) Rollback(ctx context.Context) error {
	ctx, span := tx.tracer.Start(ctx, "db.Tx.Rollback", trace.WithSpanKind(trace.SpanKindClient))
	err := tx.Tx.Rollback(ctx)
	endDBSpan(span, err)
	return err
}
