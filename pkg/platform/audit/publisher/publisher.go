// Package publisher delivers audit records to an audit.Store outside the
// caller's request path.
//
// Record never returns an error and never blocks on the store: persistence
// failures are retried with exponential backoff, then logged and counted. A
// circuit breaker drops records while the store is known to be down so a
// broken sink cannot back up the process.
package publisher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "lineage/pkg/platform/audit"
	"lineage/pkg/platform/circuit"
	"lineage/pkg/requestcontext"
)

const (
	defaultMaxAttempts  = 3
	defaultBaseBackoff  = 50 * time.Millisecond
	defaultWriteTimeout = 2 * time.Second
	drainBatchSize      = 64
)

// Publisher implements audit.Recorder.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker

	maxAttempts int
	baseBackoff time.Duration
	sleep       func(time.Duration)

	// async mode
	buffer    *RingBuffer
	notify    chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer enables background delivery through a ring buffer of the
// given capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(size)
	}
}

// WithRetry sets the attempts per record and the first backoff interval.
func WithRetry(maxAttempts int, baseBackoff time.Duration) Option {
	return func(p *Publisher) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if baseBackoff >= 0 {
			p.baseBackoff = baseBackoff
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) { p.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:       store,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		breaker:     circuit.New("audit-store"),
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.buffer != nil {
		p.notify = make(chan struct{}, 1)
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.run()
	}
	return p
}

// Record enriches rec from the request context and hands it off for delivery.
func (p *Publisher) Record(ctx context.Context, rec audit.Record) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = requestcontext.Now(ctx)
	}
	if rec.RequestID == "" {
		rec.RequestID = requestcontext.RequestID(ctx)
	}
	if rec.ClientIP == "" {
		rec.ClientIP = requestcontext.ClientIP(ctx)
	}
	if rec.ActorID == "" {
		if actor := requestcontext.UserID(ctx); !actor.IsNil() {
			rec.ActorID = actor.String()
		}
	}

	if p.buffer == nil {
		p.deliver(rec)
		return
	}

	if dropped := p.buffer.Enqueue(rec); dropped {
		p.metrics.incBufferDropped()
		p.logger.Warn("audit buffer full, dropped oldest record",
			"action", rec.Action,
			"dropped_total", p.buffer.Dropped(),
		)
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Close stops accepting background work and drains what is buffered.
func (p *Publisher) Close() {
	if p.buffer == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
	})
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.notify:
			p.drain()
		case <-p.stop:
			p.drain()
			return
		}
	}
}

func (p *Publisher) drain() {
	for {
		batch := p.buffer.DequeueBatch(drainBatchSize)
		if len(batch) == 0 {
			return
		}
		for _, rec := range batch {
			p.deliver(rec)
		}
	}
}

func (p *Publisher) deliver(rec audit.Record) {
	if !p.breaker.Allow() {
		p.metrics.incCircuitDropped()
		p.logger.Warn("audit store circuit open, dropping record",
			"action", rec.Action,
			"entity_id", rec.EntityID,
		)
		return
	}

	var err error
	backoff := p.baseBackoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		err = p.store.Append(ctx, rec)
		cancel()
		if err == nil {
			p.metrics.incPersisted()
			if _, change := p.breaker.RecordSuccess(); change.Closed {
				p.metrics.setCircuitOpen(false)
				p.logger.Info("audit store circuit closed")
			}
			return
		}
		if attempt < p.maxAttempts {
			p.metrics.incRetries()
			p.sleep(backoff)
			backoff *= 2
		}
	}

	p.metrics.incFailures()
	p.logger.Error("failed to persist audit record",
		"action", rec.Action,
		"entity_type", rec.EntityType,
		"entity_id", rec.EntityID,
		"request_id", rec.RequestID,
		"attempts", p.maxAttempts,
		"error", err,
	)
	if _, change := p.breaker.RecordFailure(); change.Opened {
		p.metrics.setCircuitOpen(true)
		p.logger.Error("audit store circuit opened")
	}
}
