package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/go-kb/database"
)

// PostgresStore keeps each collection in its own pgvector table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if err := database.EnsureCollectionTable(ctx, s.pool, name, vectorSize); err != nil {
		return fmt.Errorf("ensure collection %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) DeleteCollection(ctx context.Context, name string) error {
	existed, err := database.DropCollectionTable(ctx, s.pool, name)
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	if !existed {
		return fmt.Errorf("delete collection %s: %w", name, ErrCollectionNotFound)
	}
	return nil
}

func (s *PostgresStore) UpsertBatch(ctx context.Context, name string, points []Point) (err error) {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if len(points) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, filename, chunk_index, topics, payload, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET filename = EXCLUDED.filename,
		    chunk_index = EXCLUDED.chunk_index,
		    topics = EXCLUDED.topics,
		    payload = EXCLUDED.payload,
		    embedding = EXCLUDED.embedding
	`, database.CollectionTable(name))

	for _, p := range points {
		payload, marshalErr := json.Marshal(p.Payload)
		if marshalErr != nil {
			return fmt.Errorf("marshal payload %d: %w", p.ID, marshalErr)
		}
		topics := p.Payload.Topics
		if topics == nil {
			topics = []string{}
		}
		if _, err = tx.Exec(ctx, stmt, int64(p.ID), p.Payload.Filename, p.Payload.ChunkIndex, topics, payload, pgvector.NewVector(p.Vector)); err != nil {
			return fmt.Errorf("insert point %d: %w", p.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, name string, req SearchRequest) ([]Hit, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if err := validateSearch(req); err != nil {
		return nil, err
	}

	args := []any{pgvector.NewVector(req.Vector)}
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where := []string{"TRUE"}
	if req.ScoreFloor > 0 {
		where = append(where, "1 - (embedding <=> $1::vector) >= "+bind(req.ScoreFloor))
	}
	if !req.Filter.Empty() {
		where = append(where, fmt.Sprintf("(filename = ANY(%s) OR topics && %s)",
			bind(nonNil(req.Filter.Filenames)), bind(nonNil(req.Filter.Topics))))
	}

	query := fmt.Sprintf(`
		SELECT id, payload, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1::vector
		LIMIT %s
	`, database.CollectionTable(name), strings.Join(where, " AND "), bind(req.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if isUndefinedTable(err) {
		return nil, fmt.Errorf("search collection %s: %w", name, ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id      int64
			payload []byte
			hit     Hit
		)
		if err := rows.Scan(&id, &payload, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		if err := json.Unmarshal(payload, &hit.Payload); err != nil {
			return nil, fmt.Errorf("decode payload %d: %w", id, err)
		}
		hit.ID = uint64(id)
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return nil, fmt.Errorf("search collection %s: %w", name, ErrCollectionNotFound)
		}
		return nil, err
	}
	return hits, nil
}

func (s *PostgresStore) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	if s.pool == nil {
		return CollectionInfo{}, fmt.Errorf("postgres pool is nil")
	}
	info := CollectionInfo{Name: name, Status: "ready"}
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(*), COALESCE(max(vector_dims(embedding)), 0) FROM %s
	`, database.CollectionTable(name))).Scan(&info.Points, &info.VectorSize)
	if isUndefinedTable(err) {
		return CollectionInfo{}, fmt.Errorf("get collection %s: %w", name, ErrCollectionNotFound)
	}
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	return info, nil
}

// isUndefinedTable reports a Postgres undefined_table (42P01) error, which is
// what querying a collection that was never created returns.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error {
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
