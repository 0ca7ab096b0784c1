package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/declinewatch/declinewatch-go/internal/telemetry"
)

// TracedPool decorates a DatabasePool with OpenTelemetry client spans.
// Statement text is recorded on the span; bind parameters are not.
type TracedPool struct {
	inner  DatabasePool
	tracer trace.Tracer
}

var _ DatabasePool = (*TracedPool)(nil)

// NewTracedPool wraps an existing pool. Without an installed tracer
// provider the spans are no-ops, so wrapping is always safe.
func NewTracedPool(inner DatabasePool) *TracedPool {
	return &TracedPool{
		inner:  inner,
		tracer: telemetry.GetTracer(telemetry.ServiceName + ".database"),
	}
}

func (p *TracedPool) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	ctx, span := p.tracer.Start(ctx, "db."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", sql),
	)
	return ctx, span
}

func (p *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := p.startSpan(ctx, "query_row", sql)
	defer span.End()

	return p.inner.QueryRow(ctx, sql, args...)
}

func (p *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := p.startSpan(ctx, "exec", sql)
	defer span.End()

	tag, err := p.inner.Exec(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return tag, err
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	return tag, nil
}

func (p *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := p.startSpan(ctx, "query", sql)
	defer span.End()

	rows, err := p.inner.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rows, err
}
