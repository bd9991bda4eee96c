package server

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments sessions record into.
type Metrics struct {
	sessions metric.Int64Counter
	active   metric.Int64UpDownCounter
	words    metric.Int64Counter
	iterSec  metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/loqalabs/loqa-stt/server")

	sessions, err := meter.Int64Counter("loqa.stt.sessions",
		metric.WithDescription("Streaming sessions accepted"))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("loqa.stt.sessions.active",
		metric.WithDescription("Streaming sessions currently open"))
	if err != nil {
		return nil, err
	}
	words, err := meter.Int64Counter("loqa.stt.words.committed",
		metric.WithDescription("Words committed across all sessions"))
	if err != nil {
		return nil, err
	}
	iterSec, err := meter.Float64Histogram("loqa.stt.iteration.seconds",
		metric.WithDescription("Wall time of one engine pass"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sessions: sessions,
		active:   active,
		words:    words,
		iterSec:  iterSec,
	}, nil
}

func (m *Metrics) sessionStarted(ctx context.Context, transportName string) {
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transportName)))
	m.active.Add(ctx, 1)
}

func (m *Metrics) sessionEnded(ctx context.Context) {
	m.active.Add(ctx, -1)
}

func (m *Metrics) wordsCommitted(ctx context.Context, n int) {
	m.words.Add(ctx, int64(n))
}

func (m *Metrics) iterDone(ctx context.Context, d time.Duration) {
	m.iterSec.Record(ctx, d.Seconds())
}
