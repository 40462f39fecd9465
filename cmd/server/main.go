package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"rentvault/internal/custody"
	escrowhandler "rentvault/internal/escrow/handler"
	escrowmodels "rentvault/internal/escrow/models"
	escrowservice "rentvault/internal/escrow/service"
	escrowstore "rentvault/internal/escrow/store"
	transporthttp "rentvault/internal/http"
	jwttoken "rentvault/internal/jwt_token"
	"rentvault/internal/keeper"
	"rentvault/internal/platform/config"
	"rentvault/internal/platform/httpserver"
	"rentvault/internal/platform/logger"
	"rentvault/internal/platform/metrics"
	platformredis "rentvault/internal/platform/redis"
	registryhandler "rentvault/internal/registry/handler"
	registryservice "rentvault/internal/registry/service"
	registrystore "rentvault/internal/registry/store"
	"rentvault/internal/schedule"
	"rentvault/internal/yield"
	id "rentvault/pkg/domain"
	"rentvault/pkg/platform/events"
	"rentvault/pkg/platform/events/publisher"
	eventsmemory "rentvault/pkg/platform/events/store/memory"
	eventspostgres "rentvault/pkg/platform/events/store/postgres"
	eventsworker "rentvault/pkg/platform/events/worker"
)

// keeperActor is the identity stamped on automation-initiated withdrawals.
const keeperActor = id.Address("keeper:automation")

// main wires the stores, services, keeper and HTTP surface. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Persistence. Without a postgres URL everything runs in memory.
	var (
		ledger     custody.Ledger
		records    registrystore.RecordStore
		eventStore events.Store
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("postgres pool", "error", err)
			return
		}
		defer pool.Close()
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("postgres open", "error", err)
			return
		}
		defer db.Close()
		ledger = custody.NewPostgresLedger(pool)
		records = registrystore.NewPostgres(db)
		eventStore = eventspostgres.New(db)
	} else {
		ledger = custody.NewInMemoryLedger()
		records = registrystore.NewInMemory()
		eventStore = eventsmemory.New()
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connect", "error", err)
		return
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Events flow to the sink channel for persistence, and to Kafka when a
	// broker is configured.
	sink := make(chan events.Event, 256)
	var pub events.Publisher = publisher.NewMemory(sink)
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := publisher.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, publisher.WithLogger(log))
		if err != nil {
			log.Error("kafka connect", "error", err)
			return
		}
		defer kafka.Close()
		pub = teePublisher{pub, kafka}
	}

	admin, err := id.ParseAddress(cfg.Administrator)
	if err != nil {
		log.Error("administrator address", "error", err)
		return
	}

	sched := schedule.New(admin)
	instances := escrowstore.NewInMemory()
	venue := yield.NewSimulatedVenue(ledger, uint64(cfg.YieldBps))

	escrowSvc := escrowservice.New(instances, ledger, venue, sched, registryservice.FeeAccount,
		escrowservice.WithLogger(log),
		escrowservice.WithPublisher(pub),
		escrowservice.WithMetrics(m),
	)
	registrySvc, err := registryservice.New(ctx, records, instances, ledger, sched, admin,
		escrowmodels.NewTemplate("template:genesis"),
		registryservice.WithLogger(log),
		registryservice.WithPublisher(pub),
		registryservice.WithMetrics(m),
	)
	if err != nil {
		log.Error("registry init", "error", err)
		return
	}

	validator := jwttoken.NewJWTService(cfg.JWTSigningKey, "rentvault", "rentvault")
	router := transporthttp.NewRouter(transporthttp.Deps{
		Escrow:    escrowhandler.New(escrowSvc, log),
		Registry:  registryhandler.New(registrySvc, log),
		Validator: validator,
		Logger:    log,
		Health: func(r *http.Request) error {
			if redisClient != nil {
				return redisClient.Health(r.Context())
			}
			return nil
		},
	})
	srv := httpserver.New(cfg.Addr, router)

	keep := keeper.New(sched, escrowSvc, keeperActor, cfg.KeeperBatchMax,
		keeper.WithLogger(log),
		keeper.WithMetrics(m),
	)
	runner := keeper.NewRunner(keep, cfg.KeeperInterval, redisClient, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eventsworker.New(eventStore, sink).Run(gctx)
	})
	g.Go(func() error {
		if err := runner.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		runner.Stop()
		return nil
	})
	g.Go(func() error {
		log.Info("starting rentvault", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutdown", "error", err)
	}
}

// teePublisher fans one emission out to every sink.
type teePublisher []events.Publisher

func (t teePublisher) Emit(ctx context.Context, event events.Event) error {
	var firstErr error
	for _, p := range t {
		if err := p.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teePublisher) Close() error {
	var firstErr error
	for _, p := range t {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
