package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"careers-relay/internal/config"
	"careers-relay/internal/health"
	"careers-relay/internal/logger"
	"careers-relay/internal/mailer"
	"careers-relay/internal/metrics"
	natsclient "careers-relay/internal/nats"
	"careers-relay/internal/relay"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	if cfg.Trace.Enabled {
		tracer.Start(
			tracer.WithService(cfg.Trace.Service+"-relay"),
			tracer.WithEnv(cfg.Trace.Env),
		)
		defer tracer.Stop()
	}
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelay(reg)
	checker := health.New(log)

	var sender mailer.Sender
	switch cfg.Dispatch.Mode {
	case config.DispatchQueue:
		nc, js, err := natsclient.Setup(cfg.Dispatch.NATSURL, log)
		if err != nil {
			return err
		}
		defer nc.Close()
		checker.AddReadiness("nats", natsclient.Check(nc))
		sender = mailer.NewQueue(js, log)
	default:
		if err := cfg.ValidateProvider(); err != nil {
			return err
		}
		sender, err = mailer.New(cfg.Mail, log)
		if err != nil {
			return err
		}
	}

	router := relay.NewRouter(relay.RouterDependencies{
		Handler:        relay.NewHandler(sender, cfg.Mail.From, cfg.Mail.To, relayMetrics, log),
		Paths:          cfg.Server.Paths,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Metrics:        relayMetrics,
		MetricsHandler: metrics.Handler(reg),
		HealthHandler:  checker.Handler(),
		Log:            log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Mail.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("relay service starting",
			zap.String("addr", httpServer.Addr),
			zap.Strings("paths", cfg.Server.Paths),
			zap.String("dispatch", cfg.Dispatch.Mode),
			zap.String("provider", cfg.Mail.Provider),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
