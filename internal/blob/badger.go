package blob

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// versionHeaderLen is the size of the version prefix stored in front of every value.
const versionHeaderLen = 8

// Badger is a single-node Store on top of BadgerDB. Each value carries its own
// generation counter; Badger's serializable transactions make the check-and-set
// in Put atomic against concurrent writers.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger opens a Badger-backed store at dir. An empty dir opens an in-memory database.
func OpenBadger(dir string) (*Badger, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating badger directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	logger := slog.Default().With("component", "badger-store")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &Badger{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (b *Badger) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var obj *Object
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		version, data, err := decodeVersioned(raw)
		if err != nil {
			return fmt.Errorf("key %s: %w", key, err)
		}
		obj = &Object{Key: key, Data: data, Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (b *Badger) Put(ctx context.Context, key string, data []byte, cond Precondition) (Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var next Version
	err := b.db.Update(func(txn *badger.Txn) error {
		var current Version
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if current, _, err = decodeVersioned(raw); err != nil {
				return fmt.Errorf("key %s: %w", key, err)
			}
		}
		if err := cond.check(current); err != nil {
			return err
		}
		next = current + 1
		return txn.Set([]byte(key), encodeVersioned(next, data))
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent transaction touched the key between our read and commit.
		b.logger.Debug("badger transaction conflict", "key", key)
		return 0, ErrPreconditionFailed
	}
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (b *Badger) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func encodeVersioned(v Version, data []byte) []byte {
	out := make([]byte, versionHeaderLen+len(data))
	binary.BigEndian.PutUint64(out, uint64(v))
	copy(out[versionHeaderLen:], data)
	return out
}

func decodeVersioned(raw []byte) (Version, []byte, error) {
	if len(raw) < versionHeaderLen {
		return 0, nil, fmt.Errorf("stored value too short: %d bytes", len(raw))
	}
	return Version(binary.BigEndian.Uint64(raw)), raw[versionHeaderLen:], nil
}

var _ Store = (*Badger)(nil)
