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
	"careers-relay/internal/worker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ValidateProvider(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	if cfg.Trace.Enabled {
		tracer.Start(
			tracer.WithService(cfg.Trace.Service+"-worker"),
			tracer.WithEnv(cfg.Trace.Env),
		)
		defer tracer.Stop()
	}

	nc, js, err := natsclient.Setup(cfg.Dispatch.NATSURL, log)
	if err != nil {
		return err
	}
	defer nc.Close()

	sender, err := mailer.New(cfg.Mail, log)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	checker := health.New(log)
	checker.AddReadiness("nats", natsclient.Check(nc))

	applicationWorker, err := worker.New(js, sender, worker.Options{
		MaxRetries:    cfg.Dispatch.MaxRetries,
		RatePerSecond: cfg.Dispatch.RatePerSecond,
		FetchWait:     cfg.Dispatch.FetchWait,
	}, metrics.NewWorker(reg), log)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/live", checker.Handler())
	mux.Handle("/ready", checker.Handler())
	opsServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return applicationWorker.Run(groupCtx)
	})
	group.Go(func() error {
		log.Info("worker ops endpoint starting", zap.String("addr", opsServer.Addr))
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return opsServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
