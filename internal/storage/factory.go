package storage

import (
	"context"
	"fmt"
	"time"

	"expensedash/internal/config"
	applog "expensedash/internal/log"
)

// BackendType names a session store implementation.
type BackendType string

const (
	MemoryBackend   BackendType = config.SessionBackendMemory
	SQLiteBackend   BackendType = config.SessionBackendSQLite
	PostgresBackend BackendType = config.SessionBackendPostgres
)

func (b BackendType) IsValid() bool {
	switch b {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	}
	return false
}

func (b BackendType) String() string { return string(b) }

// Options selects and configures the session store.
type Options struct {
	Backend      BackendType
	Secret       string
	SQLiteDBPath string
	DatabaseURL  string
}

// OptionsFromConfig maps the application configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Backend:      BackendType(cfg.SessionBackend),
		Secret:       cfg.SessionSecret,
		SQLiteDBPath: cfg.SQLiteDBPath,
		DatabaseURL:  cfg.DatabaseURL,
	}
}

// Open creates the configured store. The caller owns Close.
func Open(ctx context.Context, opts Options, logger *applog.Logger) (Store, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentStorage)

	if !opts.Backend.IsValid() {
		return nil, fmt.Errorf("invalid session backend: %s", opts.Backend)
	}

	switch opts.Backend {
	case MemoryBackend:
		logger.Info("Using in-memory session store")
		return NewMemoryStore(), nil

	case SQLiteBackend:
		sealer, err := NewSealer(opts.Secret)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLiteStore(opts.SQLiteDBPath, sealer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite session store: %w", err)
		}
		logger.Info("Using SQLite session store", "db_path", opts.SQLiteDBPath)
		return store, nil

	case PostgresBackend:
		sealer, err := NewSealer(opts.Secret)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(ctx, opts.DatabaseURL, sealer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres session store: %w", err)
		}
		logger.Info("Using Postgres session store")
		return store, nil
	}
	return nil, fmt.Errorf("unsupported session backend: %s", opts.Backend)
}

// StartCleanup deletes expired sessions every interval until ctx is done.
// The returned channel is closed when the loop exits.
func StartCleanup(ctx context.Context, store Store, interval time.Duration, logger *applog.Logger) <-chan struct{} {
	done := make(chan struct{})
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentStorage)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := store.DeleteExpired(ctx, now)
				if err != nil {
					logger.Warn("Failed to delete expired sessions", applog.FieldError, err)
					continue
				}
				if n > 0 {
					logger.Info("Expired sessions removed", "removed", n)
				}
			}
		}
	}()
	return done
}
