package vectorstore

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabfab/go-kb/config"
	"github.com/fabfab/go-kb/database"
)

// Open connects to the backend selected in cfg. logger receives the
// store's skip warnings; nil means log.Default().
func Open(ctx context.Context, cfg config.StoreConfig, logger *log.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendQdrant:
		return NewQdrantStore(cfg.URL, cfg.APIKey), nil
	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &ownedPostgresStore{PostgresStore: NewPostgresStore(pool), pool: pool}, nil
	case config.BackendSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s", cfg.Backend)
	}
}

// ownedPostgresStore closes the pool Open created for it.
type ownedPostgresStore struct {
	*PostgresStore
	pool *pgxpool.Pool
}

func (s *ownedPostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var (
	_ Store     = (*QdrantStore)(nil)
	_ Store     = (*PostgresStore)(nil)
	_ Store     = (*SQLiteStore)(nil)
	_ Inspector = (*QdrantStore)(nil)
	_ Inspector = (*PostgresStore)(nil)
	_ Inspector = (*SQLiteStore)(nil)
)
