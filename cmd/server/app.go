package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"

	"lineage/internal/changes"
	dupcache "lineage/internal/duplicate/cache"
	duphandler "lineage/internal/duplicate/handler"
	dupmetrics "lineage/internal/duplicate/metrics"
	dupservice "lineage/internal/duplicate/service"
	dupstore "lineage/internal/duplicate/store"
	graphstore "lineage/internal/graph/store"
	httpapi "lineage/internal/http"
	jwttoken "lineage/internal/jwt_token"
	"lineage/internal/platform/config"
	platformmetrics "lineage/internal/platform/metrics"
	"lineage/internal/platform/postgres"
	platformredis "lineage/internal/platform/redis"
	rlmetrics "lineage/internal/ratelimit/metrics"
	ratelimit "lineage/internal/ratelimit/middleware"
	rlmodels "lineage/internal/ratelimit/models"
	rlstore "lineage/internal/ratelimit/store"
	sughandler "lineage/internal/suggestion/handler"
	sugmetrics "lineage/internal/suggestion/metrics"
	sugservice "lineage/internal/suggestion/service"
	sugstore "lineage/internal/suggestion/store"
	"lineage/pkg/platform/audit"
	"lineage/pkg/platform/audit/publisher"
	kafkarelay "lineage/pkg/platform/audit/relay/kafka"
	auditmemory "lineage/pkg/platform/audit/store/memory"
	auditpg "lineage/pkg/platform/audit/store/postgres"
	"lineage/pkg/platform/circuit"
	"lineage/pkg/platform/tx"
)

const tracerName = "lineage"

// graphStore is what the applier and both services need from the graph.
type graphStore interface {
	changes.GraphStore
	dupservice.GraphReader
}

type app struct {
	logger   *slog.Logger
	cfg      config.Config
	registry *prometheus.Registry

	db        *sql.DB
	redis     *platformredis.Client
	kafka     *kgo.Client
	outbox    *auditpg.Store
	publisher *publisher.Publisher

	suggestions *sugservice.Service
	duplicates  *dupservice.Service
}

// buildApp opens every configured backend and wires the services. Postgres
// backs the stores when database.url is set; otherwise everything lives in
// memory.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger, cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		graph       graphStore
		suggestions sugservice.Store
		duplicates  dupservice.Store
		auditStore  audit.Store
		runner      tx.Runner
	)
	if cfg.Database.URL != "" {
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(cfg.Database.URL); err != nil {
				return nil, err
			}
			logger.Info("migrations applied")
		}
		a.db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.outbox = auditpg.New(a.db)
		graph = graphstore.NewPostgres(a.db)
		suggestions = sugstore.NewPostgres(a.db)
		duplicates = dupstore.NewPostgres(a.db)
		auditStore = a.outbox
		runner = tx.NewPostgresRunner(a.db, cfg.Database.TxTimeout)
	} else {
		logger.Warn("database.url not set, using in-memory stores")
		g, s, d := graphstore.NewInMemory(), sugstore.NewInMemory(), dupstore.NewInMemory()
		graph, suggestions, duplicates = g, s, d
		auditStore = auditmemory.NewInMemoryStore()
		runner = tx.NewMemoryRunner(g, s, d)
	}

	breaker := circuit.New("audit-store",
		circuit.WithFailureThreshold(cfg.Audit.FailureThreshold),
		circuit.WithCooldown(cfg.Audit.Cooldown),
	)
	a.publisher = publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithRetry(cfg.Audit.MaxAttempts, cfg.Audit.BaseBackoff),
		publisher.WithBreaker(breaker),
		publisher.WithLogger(logger),
		publisher.WithMetrics(publisher.NewMetrics(a.registry)),
	)

	a.redis, err = platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.kafka, err = kafkarelay.NewClient(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, cfg.Kafka.Partitions)
		if err != nil {
			return nil, err
		}
	}

	tracer := otel.Tracer(tracerName)
	applier := changes.NewApplier(graph)

	a.suggestions = sugservice.New(suggestions, graph, applier,
		sugservice.WithTx(runner),
		sugservice.WithAudit(a.publisher),
		sugservice.WithLogger(logger),
		sugservice.WithMetrics(sugmetrics.New(a.registry)),
		sugservice.WithTracer(tracer),
	)

	dupOpts := []dupservice.Option{
		dupservice.WithTx(runner),
		dupservice.WithAudit(a.publisher),
		dupservice.WithLogger(logger),
		dupservice.WithMetrics(dupmetrics.New(a.registry)),
		dupservice.WithTracer(tracer),
		dupservice.WithScanLimits(cfg.Duplicates.MaxScanPersons, cfg.Duplicates.ScanWorkers),
	}
	if a.redis != nil {
		dupOpts = append(dupOpts, dupservice.WithCache(dupcache.NewSummaries(a.redis.Client, cfg.Duplicates.SummaryTTL)))
	}
	a.duplicates = dupservice.New(duplicates, graph, applier, dupOpts...)

	return a, nil
}

// router builds the HTTP surface over the wired services.
func (a *app) router() http.Handler {
	health := map[string]httpapi.HealthCheck{}
	if a.db != nil {
		health["postgres"] = a.db.PingContext
	}
	if a.redis != nil {
		health["redis"] = a.redis.Health
	}
	deps := httpapi.Deps{
		Logger:      a.logger,
		Validator:   jwttoken.NewJWTService(a.cfg.Auth.JWTSigningKey, a.cfg.Auth.Issuer, a.cfg.Auth.Audience),
		Metrics:     platformmetrics.New(a.registry, a.registry),
		AdminToken:  a.cfg.Server.AdminToken,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Health:      health,
		Handlers: []httpapi.Registrar{
			sughandler.New(a.suggestions, a.logger),
			duphandler.New(a.duplicates, a.logger),
		},
	}
	if a.cfg.RateLimit.Enabled {
		deps.RateLimit = a.rateLimiter().Limit
	}
	return httpapi.NewRouter(deps)
}

// rateLimiter counts in Redis when it is configured so replicas share
// budgets.
func (a *app) rateLimiter() *ratelimit.Middleware {
	rl := a.cfg.RateLimit
	var counter ratelimit.Store = rlstore.NewInMemory()
	if a.redis != nil {
		counter = rlstore.NewRedis(a.redis.Client)
	}
	return ratelimit.New(counter, map[rlmodels.Class]rlmodels.Limit{
		rlmodels.ClassRead:  {Requests: rl.Read, Window: rl.Window},
		rlmodels.ClassWrite: {Requests: rl.Write, Window: rl.Window},
		rlmodels.ClassScan:  {Requests: rl.Scan, Window: rl.Window},
	}, a.logger, ratelimit.WithMetrics(rlmetrics.New(a.registry)))
}

// relay returns the outbox relay, or nil when kafka is not configured.
func (a *app) relay() *kafkarelay.Relay {
	if a.kafka == nil || a.outbox == nil {
		return nil
	}
	return kafkarelay.New(a.outbox, a.kafka, a.cfg.Kafka.AuditTopic,
		kafkarelay.WithTx(tx.NewPostgresRunner(a.db, a.cfg.Database.TxTimeout)),
		kafkarelay.WithLogger(a.logger),
		kafkarelay.WithBatch(a.cfg.Kafka.RelayBatch, a.cfg.Kafka.RelayInterval),
	)
}

// Close releases backends in reverse order of acquisition. The publisher is
// drained first so queued audit records reach the store.
func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.kafka != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.kafka.Flush(flushCtx); err != nil {
			a.logger.Warn("kafka flush failed", "error", err)
		}
		cancel()
		a.kafka.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database close failed", "error", err)
		}
	}
}
