package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abkawan/banking-directory/internal/config"
	"github.com/abkawan/banking-directory/internal/db"
	"github.com/abkawan/banking-directory/internal/logger"
	"github.com/abkawan/banking-directory/internal/models"
	"github.com/abkawan/banking-directory/internal/queue"
	"github.com/abkawan/banking-directory/internal/service"
)

func main() {
	reference := flag.String("reference", "", "print the archived entry with this reference and exit")
	account := flag.Int("account", 0, "print the archived history of this account number and exit")
	limit := flag.Int("limit", service.DefaultHistoryLimit, "page size for -account")
	offset := flag.Int("offset", 0, "entries to skip for -account")
	flag.Parse()
	queryMode := *reference != "" || *account != 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "Failed to load config", err)
	}

	// query output owns stdout
	logOut := os.Stdout
	if queryMode {
		logOut = os.Stderr
	}
	log := logger.New(logOut, cfg.Log)
	slog.SetDefault(log)

	if cfg.Mongo.URI == "" {
		fatal(log, "Archiver needs BANK_MONGO_URI", nil)
	}
	if !queryMode && cfg.RabbitMQ.URI == "" {
		fatal(log, "Archiver needs BANK_RABBITMQ_URI", nil)
	}

	// Connect to MongoDB
	log.Info("Connecting to MongoDB...")
	mongodb, err := db.NewMongoDB(cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		fatal(log, "Failed to connect to MongoDB", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = mongodb.Close(closeCtx)
	}()

	if queryMode {
		if err := query(ctx, service.NewArchiver(nil, mongodb, log), *reference, *account, *limit, *offset); err != nil {
			log.Error("Archive query failed", "error", err)
		}
		return
	}

	// Connect to RabbitMQ
	log.Info("Connecting to RabbitMQ...")
	rabbitmq, err := queue.NewRabbitMQ(cfg.RabbitMQ.URI, cfg.RabbitMQ.Queue)
	if err != nil {
		fatal(log, "Failed to connect to RabbitMQ", err)
	}
	defer rabbitmq.Close()

	log.Info("Starting ledger archiver...")
	done, err := service.NewArchiver(rabbitmq, mongodb, log).StartProcessor(ctx)
	if err != nil {
		fatal(log, "Failed to start ledger archiver", err)
	}
	log.Info("Ledger archiver started", "queue", cfg.RabbitMQ.Queue, "database", cfg.Mongo.Database)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Shutting down archiver...")
	case <-done:
		log.Warn("Ledger queue closed, shutting down archiver...")
	}

	cancel()
	<-done
	log.Info("Archiver shut down successfully")
}

func fatal(log *slog.Logger, msg string, err error) {
	if err != nil {
		log.Error(msg, "error", err)
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}

func query(ctx context.Context, archiver *service.Archiver, reference string, account, limit, offset int) error {
	if reference != "" {
		ev, err := archiver.ArchivedEntry(ctx, reference)
		if err != nil {
			return err
		}
		printEvent(*ev)
	}
	if account != 0 {
		history, err := archiver.ArchivedHistory(ctx, account, limit, offset)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Printf("No archived transactions for Account No: %d\n", account)
		}
		for _, ev := range history {
			printEvent(ev)
		}
	}
	return nil
}

func printEvent(ev models.LedgerEvent) {
	fmt.Printf("%s  %d  %s: %d Ksh  balance %d Ksh  (%s)\n",
		ev.OccurredAt.Format(time.RFC3339), ev.AccountNumber, ev.Type, ev.Amount, ev.BalanceAfter, ev.Reference)
}
