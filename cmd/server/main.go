package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/werewolf-backend/internal/config"
	"github.com/DoyleJ11/werewolf-backend/internal/httpapi"
	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/metrics"
	"github.com/DoyleJ11/werewolf-backend/internal/session"
	"github.com/DoyleJ11/werewolf-backend/internal/store"
	"github.com/DoyleJ11/werewolf-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubOpts := hub.Options{Logger: logger.Named("hub")}
	deps := httpapi.Deps{
		WS: ws.Options{
			Logger:         logger,
			Sessions:       session.NewDirectory(),
			RateLimit:      rate.Limit(cfg.WSRateLimit),
			RateBurst:      cfg.WSRateBurst,
			OriginPatterns: cfg.WSAllowedOrigins,
			OutboxSize:     cfg.OutboxSize,
			ReadTimeout:    cfg.ReadTimeout,
		},
	}

	if cfg.DBDriver != "" {
		st, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		hubOpts.Archiver = st
		deps.Games = st
		logger.Info("game archive enabled", zap.String("driver", cfg.DBDriver))
	}

	if cfg.MetricsEnabled {
		metrics.MustRegister(prometheus.DefaultRegisterer)
		deps.Metrics = promhttp.Handler()
	}

	// A failing listener cancels gctx, which also stops the hub.
	g, gctx := errgroup.WithContext(ctx)
	h := hub.NewHub(gctx, hubOpts)
	deps.Hub = h

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// rooms are parented on gctx and are already closing
		logger.Info("shutting down")
		<-h.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
