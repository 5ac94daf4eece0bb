// Package checkpoint persists ensemble snapshots in an embedded Badger
// database, keyed by run id and step.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no checkpoint matches a lookup.
var ErrNotFound = errors.New("checkpoint: not found")

const keyPrefix = "ckpt/"

// Config holds configuration for a checkpoint store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory bool
	// SyncWrites fsyncs every save.
	SyncWrites bool
	// Keep bounds the checkpoints retained per run. Zero keeps all.
	Keep int
}

// Store saves and loads snapshots.
type Store struct {
	db   *badger.DB
	keep int
	log  *zap.Logger
}

// Open opens a store. A nil logger disables logging.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("checkpoint: path is required for a persistent store")
	}
	if cfg.Keep < 0 {
		return nil, fmt.Errorf("checkpoint: keep must be non-negative, got %d", cfg.Keep)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{log: log.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &Store{db: db, keep: cfg.Keep, log: log}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores data as the checkpoint of run at step, then prunes old
// checkpoints beyond the retention limit.
func (s *Store) Save(run uuid.UUID, step int64, data []byte) error {
	if step < 0 {
		return fmt.Errorf("checkpoint: negative step %d", step)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(run, step), data)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %s@%d: %w", run, step, err)
	}
	s.log.Debug("checkpoint saved",
		zap.Stringer("run", run),
		zap.Int64("step", step),
		zap.Int("bytes", len(data)),
	)

	if s.keep > 0 {
		return s.Prune(run, s.keep)
	}
	return nil
}

// Load returns the checkpoint of run at step.
func (s *Store) Load(run uuid.UUID, step int64) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(run, step))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

// Latest returns the highest-step checkpoint of run.
func (s *Store) Latest(run uuid.UUID) (int64, []byte, error) {
	var (
		step int64
		data []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := runPrefix(run)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append(append([]byte(nil), prefix...), 0xff))
		if !it.ValidForPrefix(prefix) {
			return ErrNotFound
		}
		item := it.Item()
		step = stepOf(item.Key())
		var err error
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return step, data, nil
}

// List returns the checkpointed steps of run in ascending order.
func (s *Store) List(run uuid.UUID) ([]int64, error) {
	var steps []int64
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := runPrefix(run)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			steps = append(steps, stepOf(it.Item().Key()))
		}
		return nil
	})
	return steps, err
}

// Runs returns every run id with at least one checkpoint.
func (s *Store) Runs() ([]uuid.UUID, error) {
	var runs []uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(keyPrefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().Key()
			id, err := uuid.FromBytes(k[len(keyPrefix) : len(keyPrefix)+16])
			if err != nil {
				return err
			}
			if n := len(runs); n == 0 || runs[n-1] != id {
				runs = append(runs, id)
			}
		}
		return nil
	})
	return runs, err
}

// Delete removes the checkpoint of run at step.
func (s *Store) Delete(run uuid.UUID, step int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(run, step))
	})
}

// Prune keeps only the newest keep checkpoints of run.
func (s *Store) Prune(run uuid.UUID, keep int) error {
	steps, err := s.List(run)
	if err != nil {
		return err
	}
	if len(steps) <= keep {
		return nil
	}
	stale := steps[:len(steps)-keep]
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, step := range stale {
			if err := txn.Delete(key(run, step)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prune checkpoints of %s: %w", run, err)
	}
	s.log.Debug("checkpoints pruned", zap.Stringer("run", run), zap.Int("removed", len(stale)))
	return nil
}

// Keys are "ckpt/" + 16 raw uuid bytes + big-endian step, so byte order
// matches step order within a run.
func runPrefix(run uuid.UUID) []byte {
	b := make([]byte, 0, len(keyPrefix)+16+8)
	b = append(b, keyPrefix...)
	return append(b, run[:]...)
}

func key(run uuid.UUID, step int64) []byte {
	return binary.BigEndian.AppendUint64(runPrefix(run), uint64(step))
}

func stepOf(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k[len(k)-8:]))
}

// badgerLogger routes Badger's internal logging through zap.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{}) { l.log.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{}) { l.log.Debugf(format, args...) }
