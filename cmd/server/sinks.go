package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"lendaudit/internal/platform/config"
	"lendaudit/internal/platform/kafka"
	kafkaconsumer "lendaudit/internal/platform/kafka/consumer"
	"lendaudit/internal/platform/redis"
	"lendaudit/pkg/platform/audit"
	auditconsumer "lendaudit/pkg/platform/audit/consumer"
	"lendaudit/pkg/platform/audit/store/fanout"
	auditkafka "lendaudit/pkg/platform/audit/store/kafka"
	"lendaudit/pkg/platform/audit/store/memory"
	"lendaudit/pkg/platform/audit/store/postgres"
	auditredis "lendaudit/pkg/platform/audit/store/redis"
)

// sinks owns the audit storage connections.
//
// The primary sink is the system of record: Kafka when configured (the
// materializer copies the topic into Postgres), else Postgres, else the Redis
// stream, else memory. Redis receives a best-effort stream copy whenever it is
// configured but not primary.
type sinks struct {
	store audit.Store

	pg       *postgres.Store
	db       *sql.DB
	redis    *redis.Client
	producer *kgo.Client
	loop     *kafkaconsumer.Consumer
	kafkaCfg kafka.Config
	closers  []func()

	stopConsumer context.CancelFunc
	consumerDone sync.WaitGroup
}

func openSinks(ctx context.Context, cfg config.Config, reg prometheus.Registerer, log *slog.Logger) (*sinks, error) {
	s := &sinks{
		kafkaCfg: kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Group:   cfg.Kafka.Group,
		},
	}
	// primary is the system of record; only its failures reach the interceptor.
	var (
		primaryName string
		primary     audit.Store
		replica     audit.Store
	)

	if cfg.Database.URL != "" {
		db, err := sql.Open("pgx", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		s.closers = append(s.closers, func() { _ = db.Close() })
		if err := db.PingContext(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		s.db = db
		s.pg = postgres.New(db)
		if err := s.pg.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	if s.kafkaCfg.Enabled() {
		producer, err := kafka.NewProducer(s.kafkaCfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.producer = producer
		s.closers = append(s.closers, producer.Close)
		if err := kafka.EnsureTopic(ctx, producer, s.kafkaCfg.Topic, 3, 1); err != nil {
			log.Warn("could not ensure audit topic", "topic", s.kafkaCfg.Topic, "error", err)
		}
		primaryName, primary = "kafka", auditkafka.New(producer, s.kafkaCfg.Topic)

		if cfg.Kafka.Materialize && s.pg != nil {
			consumer, err := kafka.NewConsumer(s.kafkaCfg)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.loop = kafkaconsumer.New(consumer, auditconsumer.NewHandler(s.pg, log), log)
			s.closers = append(s.closers, consumer.Close)
		}
	} else if s.pg != nil {
		primaryName, primary = "postgres", s.pg
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		s.Close()
		return nil, err
	}
	if rc != nil {
		s.redis = rc
		s.closers = append(s.closers, func() { _ = rc.Close() })
		stream := auditredis.New(rc.Client,
			auditredis.WithStream(cfg.Redis.Stream),
			auditredis.WithMaxLen(cfg.Redis.StreamMaxLen),
		)
		if primary == nil {
			primaryName, primary = "redis", stream
		} else {
			replica = stream
		}
	}

	if primary == nil {
		log.Warn("no audit storage configured, keeping records in memory")
		primaryName, primary = "memory", memory.NewInMemoryStore()
	}
	s.store = fanout.New(primaryName, primary, fanout.WithLogger(log), fanout.WithMetrics(reg)).
		Add("redis", replica)
	return s, nil
}

// checks reports the readiness probes for the configured backends.
func (s *sinks) checks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if s.db != nil {
		checks["postgres"] = s.db.PingContext
	}
	if s.redis != nil {
		checks["redis"] = s.redis.Health
	}
	if s.producer != nil {
		checks["kafka"] = func(ctx context.Context) error {
			if s.loop != nil {
				if err := s.loop.Err(); err != nil {
					return fmt.Errorf("audit materializer stopped: %w", err)
				}
			}
			return s.producer.Ping(ctx)
		}
	}
	return checks
}

// startMaterializer runs the Kafka to Postgres copy loop in the background.
func (s *sinks) startMaterializer(ctx context.Context, log *slog.Logger) {
	if s.loop == nil {
		return
	}
	ctx, s.stopConsumer = context.WithCancel(ctx)

	s.consumerDone.Add(1)
	go func() {
		defer s.consumerDone.Done()
		log.Info("audit materializer started", "topic", s.kafkaCfg.Topic, "group", s.kafkaCfg.Group)
		if err := s.loop.Run(ctx); err != nil {
			log.Error("audit materializer stopped", "error", err)
		}
	}()
}

func (s *sinks) stopMaterializer() {
	if s.stopConsumer == nil {
		return
	}
	s.stopConsumer()
	s.consumerDone.Wait()
}

// Close releases connections in reverse order of opening.
func (s *sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
