// Package service holds the moment lifecycle, call coordination and heart
// counting logic. Every public operation bounds its store calls with a
// timeout and maps store failures to an unavailable error.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jojo-app/realtime-server-go/internal/database"
	"github.com/jojo-app/realtime-server-go/internal/metrics"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/sse"
)

// Transactor runs fn inside a database transaction. *database.DB satisfies it.
type Transactor interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// EventPublisher is the fanout surface the services publish through.
// *sse.Broker satisfies it.
type EventPublisher interface {
	PublishMoment(ctx context.Context, category model.Category, eventType string, payload any) sse.PublishResult
	PublishToIdentity(ctx context.Context, identityID, eventType string, payload any) sse.PublishResult
	PublishToIdentities(ctx context.Context, identityIDs []string, eventType string, payload any) sse.PublishResult
}

type options struct {
	now          func() time.Time
	newID        func() string
	storeTimeout time.Duration
	metrics      metrics.MetricsCollector
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) { o.storeTimeout = d }
}

func WithMetrics(m metrics.MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

func newOptions(opts []Option) options {
	o := options{
		now:          time.Now,
		newID:        uuid.NewString,
		storeTimeout: 5 * time.Second,
		metrics:      metrics.Nop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) clock() time.Time {
	return o.now().UTC()
}

// storeCtx bounds a store round trip. A timed-out call surfaces as an
// unavailable error and is never treated as applied.
func (o *options) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.storeTimeout)
}

// detachedStoreCtx is used for compensating writes that must run even when
// the caller's context is already done.
func (o *options) detachedStoreCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.storeTimeout)
}

func (o *options) observe(op string, start time.Time) {
	o.metrics.RecordStoreLatency(op, time.Since(start))
}
