package memo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/neurotrace/connectome/internal/domain"
)

// BadgerOptions configures the embedded processed-neuron database.
type BadgerOptions struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// OpenBadger opens the database. Close it when the process exits.
func OpenBadger(opts BadgerOptions) (*badger.DB, error) {
	var bo badger.Options
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("badger path is required")
		}
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", opts.Path, err)
		}
		bo = badger.DefaultOptions(opts.Path)
	}
	bo = bo.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bo = bo.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bo = bo.WithLogger(nil)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// Badger persists processed neurons across process restarts.
type Badger struct {
	db     *badger.DB
	prefix string
}

// NewBadger returns a memo for run stored in db. Marks persist across restarts and are
// independent of result files; wrap the factory with Seeded to honour existing results.
func NewBadger(db *badger.DB, run string) *Badger {
	return &Badger{db: db, prefix: "processed/" + run + "/"}
}

// BadgerFactory returns a Factory producing Badger memos.
func BadgerFactory(db *badger.DB) Factory {
	return func(_ context.Context, run string) (Memo, error) {
		return NewBadger(db, run), nil
	}
}

func (b *Badger) key(id domain.NeuronID) []byte {
	return []byte(b.prefix + id.String())
}

func (b *Badger) Seen(_ context.Context, id domain.NeuronID) (bool, error) {
	seen := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(b.key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		seen = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("check processed %d: %w", id, err)
	}
	return seen, nil
}

func (b *Badger) Mark(_ context.Context, id domain.NeuronID) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key(id), nil)
	})
	if err != nil {
		return fmt.Errorf("mark processed %d: %w", id, err)
	}
	return nil
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
