package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/abkawan/banking-directory/internal/models"
	"github.com/abkawan/banking-directory/internal/queue"
)

// DefaultHistoryLimit caps ArchivedHistory when the caller passes no limit.
const DefaultHistoryLimit = 100

// EventSource delivers published ledger events.
type EventSource interface {
	ConsumeEntries(ctx context.Context) (<-chan queue.Delivery, error)
}

// EntryArchive stores ledger events outside the relational store.
type EntryArchive interface {
	ArchiveEntry(ctx context.Context, ev models.LedgerEvent) error
	EntryByReference(ctx context.Context, reference string) (*models.LedgerEvent, error)
	EntriesByAccount(ctx context.Context, accountNumber int, limit, offset int) ([]models.LedgerEvent, error)
}

// Archiver copies ledger events from the queue into the archive and answers
// queries against it.
type Archiver struct {
	source  EventSource
	archive EntryArchive
	logger  *slog.Logger
}

// creates a new Archiver; source may be nil when only queries are needed
func NewArchiver(source EventSource, archive EntryArchive, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Archiver{
		source:  source,
		archive: archive,
		logger:  logger,
	}
}

// StartProcessor consumes events in a goroutine until ctx is done or the
// source closes. A message is acked only once its event is archived and is
// requeued otherwise. The returned channel is closed when the goroutine exits.
func (a *Archiver) StartProcessor(ctx context.Context) (<-chan struct{}, error) {
	if a.source == nil {
		return nil, errors.New("archiver has no event source")
	}
	deliveries, err := a.source.ConsumeEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to consume ledger entries: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				a.process(ctx, d)
			}
		}
	}()

	return done, nil
}

func (a *Archiver) process(ctx context.Context, d queue.Delivery) {
	ev := d.Event
	if err := a.archive.ArchiveEntry(ctx, ev); err != nil {
		a.logger.Error("Failed to archive ledger entry, requeueing", "reference", ev.Reference, "error", err)
		if err := d.Nack(true); err != nil {
			a.logger.Error("Failed to requeue ledger entry", "reference", ev.Reference, "error", err)
		}
		return
	}
	if err := d.Ack(); err != nil {
		// the upsert makes the redelivery harmless
		a.logger.Warn("Failed to ack archived ledger entry", "reference", ev.Reference, "error", err)
		return
	}
	a.logger.Debug("Archived ledger entry",
		"reference", ev.Reference,
		"account_number", ev.AccountNumber,
		"type", ev.Type,
	)
}

// ArchivedEntry returns the archived copy of one ledger entry.
func (a *Archiver) ArchivedEntry(ctx context.Context, reference string) (*models.LedgerEvent, error) {
	return a.archive.EntryByReference(ctx, reference)
}

// ArchivedHistory pages through the archived entries of an account number,
// oldest first. It still answers after the account itself is deleted.
func (a *Archiver) ArchivedHistory(ctx context.Context, accountNumber, limit, offset int) ([]models.LedgerEvent, error) {
	if !models.ValidAccountNumber(accountNumber) {
		return nil, fmt.Errorf("%w: %d", models.ErrAccountNumberOutOfRange, accountNumber)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return a.archive.EntriesByAccount(ctx, accountNumber, limit, offset)
}
