package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the BadgerDB session cache.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for
	// testing; also a reasonable production choice since the cache holds
	// no authoritative data.
	InMemory bool

	// TTL is how long an entry stays readable after its last write.
	TTL time.Duration

	// Logger receives BadgerDB's internal logging. If nil, it is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a production configuration.
func DefaultConfig(path string, ttl time.Duration) Config {
	return Config{Path: path, TTL: ttl}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig(ttl time.Duration) Config {
	return Config{InMemory: true, TTL: ttl}
}

// BadgerCache implements Cache on an embedded BadgerDB instance.
type BadgerCache struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadger opens a BadgerDB-backed session cache.
func NewBadger(cfg Config) (*BadgerCache, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive, got %v", cfg.TTL)
	}

	opts := badger.DefaultOptions(cfg.Path).WithInMemory(cfg.InMemory)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	return &BadgerCache{db: db, ttl: cfg.TTL}, nil
}

func cacheKey(sessionID string) []byte {
	return []byte("session/" + sessionID)
}

// Put stores the session with the configured TTL.
func (c *BadgerCache) Put(ctx context.Context, s *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.SessionID, err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(s.SessionID), payload).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache put %s: %w", s.SessionID, err)
	}
	return nil
}

// Get returns the cached session or ErrCacheMiss.
func (c *BadgerCache) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(sessionID))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", sessionID, err)
	}

	var s domain.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		// A corrupt entry is indistinguishable from a miss for callers.
		return nil, fmt.Errorf("%w: decode session %s: %v", ErrCacheMiss, sessionID, err)
	}
	return &s, nil
}

// Drop removes the entry if present.
func (c *BadgerCache) Drop(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cacheKey(sessionID))
	})
	if err != nil {
		return fmt.Errorf("cache drop %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the underlying database.
func (c *BadgerCache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close badger cache: %w", err)
	}
	return nil
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
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
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
