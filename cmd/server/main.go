// Command server runs the vaccination registration and appointment platform.
// main wires configuration, storage, the broker, and the HTTP surface; all
// business logic lives under internal/.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"impfportal/internal/admin"
	"impfportal/internal/booking"
	bookingmetrics "impfportal/internal/booking/metrics"
	"impfportal/internal/disease"
	"impfportal/internal/dossier"
	dossierhandler "impfportal/internal/dossier/handler"
	dossiermetrics "impfportal/internal/dossier/metrics"
	jwttoken "impfportal/internal/jwt_token"
	"impfportal/internal/platform/config"
	"impfportal/internal/platform/httpserver"
	"impfportal/internal/platform/kafka"
	"impfportal/internal/platform/logger"
	"impfportal/internal/platform/metrics"
	"impfportal/internal/platform/redis"
	"impfportal/internal/ratelimit"
	"impfportal/internal/slots"
	"impfportal/internal/snapshot"
	httptransport "impfportal/internal/transport/http"
	"impfportal/pkg/platform/audit"
)

const (
	auditRelayInterval = 2 * time.Second
	rateLimitPerMinute = 120
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	platformMetrics := metrics.New()
	registry := disease.NewRegistry()
	for _, rules := range disease.Defaults() {
		if err := registry.Register(rules); err != nil {
			return err
		}
	}

	// Storage. Without a Postgres DSN everything runs in memory, which is
	// enough for development and demos.
	var (
		dossierStore     dossier.Store
		appointmentStore booking.AppointmentStore
		slotStore        slots.Store
		auditStore       audit.Store
		txRunner         dossier.TxRunner
		snapshots        dossierhandler.Snapshots
		checks           []httptransport.HealthCheck
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}

		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		dossierStore = dossier.NewPostgres(db)
		appointmentStore = booking.NewPostgresAppointmentStore(db)
		slotStore = slots.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		txRunner = newPostgresTxRunner(db)
		snapshots = snapshot.NewPgxLoader(pool)
		checks = append(checks, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
		log.Info("using postgres storage")
	} else {
		memDossiers := dossier.NewInMemoryStore()
		memAppointments := booking.NewInMemoryAppointmentStore()
		memSlots := slots.NewInMemoryStore()
		dossierStore = memDossiers
		appointmentStore = memAppointments
		slotStore = memSlots
		auditStore = audit.NewMemoryStore()
		txRunner = dossier.NewMemoryTxRunner()
		snapshots = snapshot.NewAggregator(memDossiers, memAppointments, memSlots)
		log.Warn("POSTGRES_DSN not set, using in-memory storage")
	}

	// Redis backs the slot-search cache and soft holds; absent, both fall
	// back to in-process equivalents.
	var (
		searchCache booking.SearchCache
		holdStore   booking.HoldStore
	)
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		searchCache = booking.NewRedisSearchCache(redisClient.Client, cfg.SlotCacheTTL, log)
		holdStore = booking.NewRedisHoldStore(redisClient.Client)
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: redisClient.Health})
		log.Info("using redis cache and holds")
	} else {
		searchCache = booking.NewMemorySearchCache(cfg.SlotCacheTTL)
		holdStore = booking.NewMemoryHoldStore()
	}

	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer producer.Close()
	if producer == nil {
		log.Warn("KAFKA_BROKERS not set, domain events are dropped")
	}

	coordinator := booking.NewCoordinator(slotStore, appointmentStore, log,
		booking.WithSearchCache(searchCache),
		booking.WithHolds(holdStore, cfg.SoftHoldTTL),
		booking.WithMetrics(bookingmetrics.New()),
	)

	service := dossier.NewService(txRunner, dossierStore, slotStore, coordinator, registry, log,
		dossier.WithMetrics(dossiermetrics.New()),
		dossier.WithAudit(audit.NewRecorder(auditStore, log)),
		dossier.WithEvents(dossier.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic, log)),
	)

	// Without a broker the relay stays off; audit rows remain in the outbox,
	// queryable by dossier.
	if producer != nil {
		relay := audit.NewRelayWorker(auditStore, producer, cfg.Kafka.AuditTopic, auditRelayInterval, log)
		go relay.Run(ctx)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "impfportal", "impfportal")
	validator := jwttoken.NewJWTServiceAdapter(jwtService)

	router := httptransport.NewRouter(
		httptransport.Options{
			Logger:  log,
			Limiter: ratelimit.NewLimiter(rateLimitPerMinute, time.Minute),
			Checks:  checks,
		},
		dossierhandler.New(service, snapshots, log, platformMetrics, validator),
		admin.New(slotStore, coordinator, registry, cfg.AdminToken, log),
	)

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting impfportal", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
