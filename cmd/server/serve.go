package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/jojo-app/realtime-server-go/internal/config"
	"github.com/jojo-app/realtime-server-go/internal/handler"
	"github.com/jojo-app/realtime-server-go/internal/identity"
	"github.com/jojo-app/realtime-server-go/internal/jobs"
	"github.com/jojo-app/realtime-server-go/internal/metrics"
	"github.com/jojo-app/realtime-server-go/internal/middleware"
)

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var limiter middleware.Limiter = middleware.NewMemoryLimiter()
	if a.redisClient != nil {
		limiter = middleware.NewRedisLimiter(a.redisClient.Client, "api")
	}
	if cfg.InternalSecret == "" {
		log.Warn().Msg("INTERNAL_SECRET is empty: internal routes will reject every request")
	}

	verifier := identity.NewJWTVerifier(cfg.JWTSecret)

	router := handler.NewRouter(handler.RouterDeps{
		Events:         handler.NewEventsHandler(a.broker, identity.NewResolver(verifier)),
		Moments:        handler.NewMomentHandler(a.momentSvc),
		Calls:          handler.NewCallHandler(a.callSvc),
		Wall:           handler.NewWallHandler(a.momentSvc, a.heartSvc),
		Reviews:        handler.NewReviewHandler(a.reviewSvc),
		Health:         handler.NewHealthHandler(a.db),
		Metrics:        metrics.Handler(a.promReg),
		Auth:           middleware.NewAuthMiddleware(verifier),
		RateLimit:      middleware.NewRateLimitMiddleware(limiter, cfg.RateLimitPerMin, "api"),
		ConnectLimit:   middleware.NewIPRateLimitMiddleware(limiter, config.GuestConnectLimitPerMin, "connect"),
		InternalSecret: middleware.NewInternalSecretMiddleware(cfg.InternalSecret),
		Collector:      a.collector,
		IsProduction:   a.isProduction,
	})

	expiryJob := jobs.NewExpiryJob(a.momentSvc, cfg.ExpirySweepInterval())
	expiryJob.Start()
	defer expiryJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer cancel()

	// Open streams only end once the broker closes their sessions.
	a.broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
	return nil
}
