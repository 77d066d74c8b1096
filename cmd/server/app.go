package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jojo-app/realtime-server-go/internal/config"
	"github.com/jojo-app/realtime-server-go/internal/database"
	"github.com/jojo-app/realtime-server-go/internal/metrics"
	"github.com/jojo-app/realtime-server-go/internal/redis"
	"github.com/jojo-app/realtime-server-go/internal/registry"
	"github.com/jojo-app/realtime-server-go/internal/repository"
	"github.com/jojo-app/realtime-server-go/internal/rtc"
	"github.com/jojo-app/realtime-server-go/internal/service"
	"github.com/jojo-app/realtime-server-go/internal/sse"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg          *config.Config
	isProduction bool

	db          *database.DB
	redisClient *redis.Client
	promReg     *prometheus.Registry
	collector   *metrics.Collector
	broker      *sse.Broker
	relay       *sse.RedisRelay

	momentSvc *service.MomentService
	callSvc   *service.CallService
	heartSvc  *service.HeartService
	reviewSvc *service.ReviewService
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(isProduction()); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func isProduction() bool {
	return os.Getenv("FLY_APP_NAME") != ""
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, isProduction: isProduction()}

	if cfg.AutoMigrate {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		log.Info().Msg("migrations applied")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("database connected")

	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redisClient = client
		log.Info().Msg("redis connected")
	}

	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.collector = metrics.NewCollector(a.promReg)

	a.broker = sse.NewBroker(registry.New(),
		sse.WithRoomScopedMoments(cfg.RoomScopedMomentEvents()),
		sse.WithMetrics(a.collector),
	)

	if a.redisClient != nil {
		a.relay = sse.NewRedisRelay(a.redisClient, a.broker)
		if err := a.relay.Start(); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to start event relay: %w", err)
		}
	}

	moments := repository.NewMomentRepository(db.DB)
	calls := repository.NewCallRepository(db.DB)
	hearts := repository.NewHeartRepository(db.DB)
	reviews := repository.NewReviewRepository(db.DB)
	reports := repository.NewReportRepository(db.DB)

	opts := []service.Option{
		service.WithStoreTimeout(cfg.StoreTimeout()),
		service.WithMetrics(a.collector),
	}
	issuer := rtc.NewAgoraIssuer(cfg.RTCAppID, cfg.RTCAppCertificate, cfg.RTCTokenTTL())

	a.momentSvc = service.NewMomentService(db, moments, calls, a.broker, opts...)
	a.callSvc = service.NewCallService(db, moments, calls, reports, a.broker, issuer, cfg.ClaimCandidateLimit, opts...)
	a.heartSvc = service.NewHeartService(db, moments, hearts, a.broker, opts...)
	a.reviewSvc = service.NewReviewService(calls, reviews, opts...)

	return a, nil
}

func (a *app) close() {
	if a.relay != nil {
		a.relay.Stop()
	}
	if a.broker != nil {
		a.broker.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
