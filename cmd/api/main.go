package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/cova/internal/app"
	"github.com/markdave123-py/cova/internal/config"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05.999Z07:00"})
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadConfig()
	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer application.Close()

	application.DocProcessor.Start(ctx, cfg.IngestWorkers)

	errCh := make(chan error, 1)
	go func() { errCh <- application.Server.Start() }()

	log.Info("Cova is running; DB connected and bootstrapped.")
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server error")
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
