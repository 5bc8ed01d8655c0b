package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"dispatchhub/internal/config"
	"dispatchhub/internal/repository"
	"dispatchhub/internal/repository/sqlite"
	"dispatchhub/internal/service"
)

// Backend is an opened persistence layer.
type Backend struct {
	Stores service.Stores
	ping   func(context.Context) error
	close  func()
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

func (b *Backend) Close() {
	b.close()
}

// Open connects the store selected by database.driver. Postgres migrations
// run here; the SQLite store migrates itself on open.
func Open(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*Backend, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info().Str("path", cfg.SQLite.Path).Msg("using sqlite store")
		return &Backend{
			Stores: service.Stores{
				Users:         store.Users(),
				Sessions:      store.Sessions(),
				Tasks:         store.Tasks(),
				Notifications: store.Notifications(),
			},
			ping: store.Ping,
			close: func() {
				if err := store.Close(); err != nil {
					log.Error().Err(err).Msg("sqlite close error")
				}
			},
		}, nil

	case "postgres":
		pool, err := NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := RunMigrations(ctx, pool, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info().Msg("using postgres store")
		return &Backend{
			Stores: service.Stores{
				Users:         repository.NewUserRepository(pool),
				Sessions:      repository.NewSessionRepository(pool),
				Tasks:         repository.NewTaskRepository(pool),
				Notifications: repository.NewNotificationRepository(pool),
			},
			ping:  pool.Ping,
			close: pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
