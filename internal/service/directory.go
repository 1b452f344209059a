package service

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"

	"github.com/abkawan/banking-directory/internal/db"
	"github.com/abkawan/banking-directory/internal/models"
)

// DefaultMaxNumberAttempts bounds how many random account numbers CreateAccount
// tries before giving up.
const DefaultMaxNumberAttempts = 100

// EntryPublisher receives every ledger entry after its transaction commits.
type EntryPublisher interface {
	Publish(ctx context.Context, ev models.LedgerEvent) error
}

// Directory is the single owner of the bank's persisted state. It enforces the
// rules no single entity can: unique emails and account numbers, atomic
// balance+ledger updates, and cascade deletion.
type Directory struct {
	store       *db.Store
	publisher   EntryPublisher
	logger      *slog.Logger
	nextNumber  func() int
	maxAttempts int
	locks       *keyedLocker
}

type Option func(*Directory)

// WithPublisher forwards committed ledger entries to p.
func WithPublisher(p EntryPublisher) Option {
	return func(d *Directory) { d.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Directory) { d.logger = l }
}

// WithNumberGenerator replaces the random account number source.
func WithNumberGenerator(gen func() int) Option {
	return func(d *Directory) { d.nextNumber = gen }
}

func WithMaxNumberAttempts(n int) Option {
	return func(d *Directory) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// creates a new Directory over store
func NewDirectory(store *db.Store, opts ...Option) *Directory {
	d := &Directory{
		store:       store,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		nextNumber:  randomAccountNumber,
		maxAttempts: DefaultMaxNumberAttempts,
		locks:       newKeyedLocker(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func randomAccountNumber() int {
	return models.MinAccountNumber + rand.Intn(models.MaxAccountNumber-models.MinAccountNumber+1)
}

// publish hands committed entries to the publisher. The entries are already
// durable, so a failure here is logged and not returned.
func (d *Directory) publish(ctx context.Context, acc models.Account, entries ...*models.LedgerEntry) {
	if d.publisher == nil {
		return
	}
	for _, e := range entries {
		if e == nil {
			continue
		}
		if err := d.publisher.Publish(ctx, models.NewLedgerEvent(acc, *e)); err != nil {
			d.logger.Warn("Failed to publish ledger entry",
				"reference", e.Reference,
				"account_number", acc.AccountNumber,
				"error", err,
			)
		}
	}
}

// keyedLocker hands out one mutex per aggregate key so operations on the same
// account or customer run one at a time inside this process. An entry lives
// only while someone holds or waits for it.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*refMutex)}
}

func (k *keyedLocker) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size reports how many keys are currently held or awaited.
func (k *keyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func accountKey(number int) string {
	return "account:" + strconv.Itoa(number)
}

func customerKey(id int64) string {
	return "customer:" + strconv.FormatInt(id, 10)
}

func emailKey(email string) string {
	return "email:" + email
}
