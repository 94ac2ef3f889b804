package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/fabfab/go-kb/database"
)

// SQLiteStore keeps vectors as BLOBs and scores every row of a collection
// in memory. It suits small local knowledge bases and tests.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewSQLiteStore wraps db. A nil logger means log.Default().
func NewSQLiteStore(db *sql.DB, logger *log.Logger) *SQLiteStore {
	if logger == nil {
		logger = log.Default()
	}
	return &SQLiteStore{db: db, logger: logger}
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if err := database.EnsureSQLiteCollection(ctx, s.db, name, vectorSize); err != nil {
		return fmt.Errorf("ensure collection %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCollection(ctx context.Context, name string) error {
	if _, err := s.vectorSize(ctx, name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+database.SQLiteCollectionTable(name)); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kb_collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	size, err := s.vectorSize(ctx, name)
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s(id, filename, chunk_index, payload, embedding) VALUES(?, ?, ?, ?, ?)`,
		database.SQLiteCollectionTable(name)))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if len(p.Vector) != size {
			return fmt.Errorf("point %d: %w: expected %d, got %d", p.ID, ErrDimensionMismatch, size, len(p.Vector))
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload %d: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, int64(p.ID), p.Payload.Filename, p.Payload.ChunkIndex, string(payload), encodeVector(p.Vector)); err != nil {
			return fmt.Errorf("insert point %d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, name string, req SearchRequest) ([]Hit, error) {
	if err := validateSearch(req); err != nil {
		return nil, err
	}
	if _, err := s.vectorSize(ctx, name); err != nil {
		return nil, fmt.Errorf("search collection %s: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, payload, embedding FROM %s ORDER BY id", database.SQLiteCollectionTable(name)))
	if err != nil {
		return nil, fmt.Errorf("search collection %s: %w", name, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id      int64
			payload string
			blob    []byte
		)
		if err := rows.Scan(&id, &payload, &blob); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}

		var hit Hit
		if err := json.Unmarshal([]byte(payload), &hit.Payload); err != nil {
			return nil, fmt.Errorf("decode payload %d: %w", id, err)
		}
		if !req.Filter.matches(hit.Payload) {
			continue
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode vector %d: %w", id, err)
		}
		score, err := CosineSimilarity(req.Vector, vec)
		if errors.Is(err, ErrZeroVector) {
			s.logger.Printf("skip point %d in %s: %v", id, name, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("score point %d: %w", id, err)
		}
		if req.ScoreFloor > 0 && score < req.ScoreFloor {
			continue
		}

		hit.ID = uint64(id)
		hit.Score = score
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

func (s *SQLiteStore) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	size, err := s.vectorSize(ctx, name)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	info := CollectionInfo{Name: name, VectorSize: size, Status: "ready"}
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+database.SQLiteCollectionTable(name)).Scan(&info.Points); err != nil {
		return CollectionInfo{}, fmt.Errorf("count points: %w", err)
	}
	return info, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) vectorSize(ctx context.Context, name string) (int, error) {
	var size int
	err := s.db.QueryRowContext(ctx, "SELECT vector_size FROM kb_collections WHERE name = ?", name).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCollectionNotFound
	}
	if err != nil {
		// The registry table itself is missing until the first collection
		// is created.
		if isMissingTable(err) {
			return 0, ErrCollectionNotFound
		}
		return 0, fmt.Errorf("read collection registry: %w", err)
	}
	return size, nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such table")
}
