package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/abkawan/banking-directory/internal/config"
	"github.com/abkawan/banking-directory/internal/console"
	"github.com/abkawan/banking-directory/internal/db"
	"github.com/abkawan/banking-directory/internal/logger"
	"github.com/abkawan/banking-directory/internal/queue"
	"github.com/abkawan/banking-directory/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "Failed to load config", err)
	}

	// stdout belongs to the menu
	log := logger.New(os.Stderr, cfg.Log)
	slog.SetDefault(log)

	log.Debug("Opening store", "driver", cfg.DB.Driver)
	store, err := db.Open(cfg.DB.Driver, cfg.DB.Url)
	if err != nil {
		fatal(log, "Failed to open store", err)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		fatal(log, "Failed to create schema", err)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMaxNumberAttempts(cfg.Accounts.MaxNumberAttempts),
	}

	// the event stream is optional; the store stays the source of truth
	if cfg.RabbitMQ.URI != "" {
		log.Debug("Connecting to RabbitMQ...")
		rabbitmq, err := queue.NewRabbitMQ(cfg.RabbitMQ.URI, cfg.RabbitMQ.Queue)
		if err != nil {
			fatal(log, "Failed to connect to RabbitMQ", err)
		}
		defer rabbitmq.Close()
		opts = append(opts, service.WithPublisher(rabbitmq))
	}

	directory := service.NewDirectory(store, opts...)

	// unblock the pending read when a signal arrives
	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()

	if err := console.NewHandler(directory, os.Stdin, os.Stdout, log).Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("Console stopped", "error", err)
		store.Close()
		os.Exit(1)
	}
	log.Debug("Goodbye")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
