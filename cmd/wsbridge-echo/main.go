package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"wsbridge/pkg/wsbridge"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := flag.String("c", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := wsbridge.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := wsbridge.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle(cfg.Echo.Path, &wsbridge.EchoServer{
		Log:            logger,
		MaxMessageSize: cfg.Echo.MaxMessageSize,
		Subprotocols:   cfg.Echo.Subprotocols,
	})

	srv := &http.Server{
		Addr:    cfg.Echo.Listen,
		Handler: mux,
	}

	log.Printf("echo server listening on %s%s", cfg.Echo.Listen, cfg.Echo.Path)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Echo.MetricsListen != "" {
		wsbridge.EnablePrometheusMetrics()
		log.Printf("metrics on http://%s/metrics", cfg.Echo.MetricsListen)
		g.Go(func() error {
			return wsbridge.StartMetricsServer(ctx, cfg.Echo.MetricsListen)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("echo server: %v", err)
	}
}
