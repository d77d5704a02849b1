// Package kafka relays audit outbox rows to a Kafka topic.
//
// Each pass locks a batch of unpublished rows, produces them keyed by entity
// so one entity's history stays ordered within a partition, and marks the
// delivered rows published in the same transaction. Rows whose produce
// failed stay unpublished and are retried on the next pass, so consumers
// must tolerate duplicates.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	auditpg "lineage/pkg/platform/audit/store/postgres"
	"lineage/pkg/platform/tx"
)

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second

	headerAction = "audit-action"
	headerID     = "audit-id"
)

// Outbox is the unpublished side of the audit outbox.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]auditpg.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Producer is the part of *kgo.Client the relay uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Relay struct {
	outbox   Outbox
	producer Producer
	topic    string
	tx       tx.Runner
	logger   *slog.Logger
	batch    int
	interval time.Duration
	now      func() time.Time
}

type Option func(*Relay)

func WithTx(r tx.Runner) Option {
	return func(rl *Relay) { rl.tx = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(rl *Relay) { rl.logger = logger }
}

// WithBatch sets the rows per pass and the pause between passes that found
// nothing to do.
func WithBatch(size int, interval time.Duration) Option {
	return func(rl *Relay) {
		if size > 0 {
			rl.batch = size
		}
		if interval > 0 {
			rl.interval = interval
		}
	}
}

func New(outbox Outbox, producer Producer, topic string, opts ...Option) *Relay {
	rl := &Relay{
		outbox:   outbox,
		producer: producer,
		topic:    topic,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		batch:    defaultBatchSize,
		interval: defaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.tx == nil {
		rl.tx = tx.NewMemoryRunner()
	}
	return rl
}

// RelayOnce publishes one batch and returns how many rows were marked
// published. A partial produce failure marks the delivered rows and returns
// the first produce error.
func (rl *Relay) RelayOnce(ctx context.Context) (int, error) {
	var published int
	var produceErr error
	err := rl.tx.RunInTx(ctx, func(txCtx context.Context) error {
		entries, err := rl.outbox.FetchUnpublished(txCtx, rl.batch)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		records := make([]*kgo.Record, len(entries))
		ids := make(map[*kgo.Record]uuid.UUID, len(entries))
		for i, e := range entries {
			records[i] = &kgo.Record{
				Topic: rl.topic,
				Key:   []byte(e.EntityKey),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: headerID, Value: []byte(e.ID.String())},
					{Key: headerAction, Value: []byte(e.Action)},
				},
				Timestamp: e.CreatedAt,
			}
			ids[records[i]] = e.ID
		}

		var delivered []uuid.UUID
		for _, res := range rl.producer.ProduceSync(txCtx, records...) {
			if res.Err != nil {
				if produceErr == nil {
					produceErr = res.Err
				}
				continue
			}
			delivered = append(delivered, ids[res.Record])
		}
		if len(delivered) == 0 {
			return nil
		}
		if err := rl.outbox.MarkPublished(txCtx, delivered, rl.now()); err != nil {
			return err
		}
		published = len(delivered)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("relay audit outbox: %w", err)
	}
	if produceErr != nil {
		return published, fmt.Errorf("produce audit records: %w", produceErr)
	}
	return published, nil
}

// Run relays until ctx is done. Full batches are followed immediately by the
// next pass; empty or failed passes wait for the interval.
func (rl *Relay) Run(ctx context.Context) error {
	rl.logger.InfoContext(ctx, "audit relay started", "topic", rl.topic, "batch", rl.batch)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			rl.logger.InfoContext(ctx, "audit relay stopped", "topic", rl.topic)
			return nil
		case <-timer.C:
		}

		n, err := rl.RelayOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			rl.logger.ErrorContext(ctx, "audit relay pass failed",
				"topic", rl.topic,
				"published", n,
				"error", err,
			)
		case n > 0:
			rl.logger.DebugContext(ctx, "audit records relayed", "topic", rl.topic, "count", n)
		}

		if err == nil && n == rl.batch {
			timer.Reset(0)
		} else {
			timer.Reset(rl.interval)
		}
	}
}

// EnsureTopic creates topic when it does not exist yet.
func EnsureTopic(ctx context.Context, admin *kadm.Client, topic string, partitions int32, replicas int16) error {
	_, err := admin.CreateTopic(ctx, partitions, replicas, nil, topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// NewClient connects a producer for topic and makes sure the topic exists.
func NewClient(ctx context.Context, brokers []string, topic string, partitions int32) (*kgo.Client, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := EnsureTopic(ctx, kadm.NewClient(cl), topic, partitions, 1); err != nil {
		cl.Close()
		return nil, err
	}
	return cl, nil
}
