package store

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/tutor/internal/models"
)

type PGVectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	// Lists is the ivfflat list count.
	Lists int
	// Probes is the number of lists a query visits. The index scan filters
	// by course after picking lists, so with fewer probes than lists a
	// course can come back with fewer than k rows. 0 probes every list,
	// which makes the filtered top-k exact.
	Probes int
}

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PGVector stores entries in a Postgres table with a pgvector column.
type PGVector struct {
	config PGVectorConfig
	pool   Pool
	table  string
}

func NewPGVector(ctx context.Context, config PGVectorConfig) (*PGVector, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %w", models.ErrIndexUnavailable, err)
	}

	vs, err := NewPGVectorWithPool(ctx, config, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return vs, nil
}

// NewPGVectorWithPool prepares the schema on an existing pool.
func NewPGVectorWithPool(ctx context.Context, config PGVectorConfig, pool Pool) (*PGVector, error) {
	if config.TableName == "" {
		config.TableName = "course_chunks"
	}
	if config.VectorDim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive", models.ErrInvalidConfig)
	}
	if config.Lists == 0 {
		config.Lists = 100
	}
	if config.Probes <= 0 || config.Probes > config.Lists {
		config.Probes = config.Lists
	}

	vs := &PGVector{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
	}
	if err := vs.initialize(ctx); err != nil {
		return nil, err
	}
	return vs, nil
}

func (vs *PGVector) initialize(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return vs.fail("create vector extension", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			course_id TEXT NOT NULL,
			source_ref TEXT,
			content TEXT,
			embedding vector(%d),
			metadata JSONB,
			ingested_at TIMESTAMPTZ
		)`, vs.table, vs.config.VectorDim)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return vs.fail("create table", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d)`,
		pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize(), vs.table, vs.config.Lists)
	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return vs.fail("create vector index", err)
	}

	createCourseIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (course_id)`,
		pgx.Identifier{vs.config.TableName + "_course_idx"}.Sanitize(), vs.table)
	if _, err := vs.pool.Exec(ctx, createCourseIndex); err != nil {
		return vs.fail("create course index", err)
	}

	return nil
}

func (vs *PGVector) Dimension() int { return vs.config.VectorDim }

func (vs *PGVector) Upsert(ctx context.Context, entries []models.IndexEntry) (int, error) {
	if err := validateEntries(vs.config.VectorDim, entries); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return 0, vs.fail("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, course_id, source_ref, content, embedding, metadata, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			source_ref = EXCLUDED.source_ref,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			ingested_at = EXCLUDED.ingested_at`,
		vs.table)

	for _, e := range entries {
		payload := stamp(e.Payload)
		payload.Text = sanitizeUTF8(payload.Text)
		metadata, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encode payload for %s: %w", e.ID, err)
		}

		_, err = tx.Exec(ctx, stmt,
			e.ID,
			string(payload.CourseID),
			payload.SourceRef,
			payload.Text,
			pgvector.NewVector(e.Vector),
			string(metadata),
			payload.IngestedAt,
		)
		if err != nil {
			return 0, vs.fail("insert entry", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, vs.fail("commit transaction", err)
	}
	return len(entries), nil
}

func (vs *PGVector) Query(ctx context.Context, courseID models.CourseID, vector []float32, k int) ([]models.Match, error) {
	if err := validateQuery(vs.config.VectorDim, courseID, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE course_id = $2
		ORDER BY embedding <=> $1, id
		LIMIT $3`,
		vs.table)

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return nil, vs.fail("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", vs.config.Probes)); err != nil {
		return nil, vs.fail("set probes", err)
	}

	rows, err := tx.Query(ctx, query, pgvector.NewVector(vector), string(courseID), k)
	if err != nil {
		return nil, vs.fail("query entries", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var (
			m        models.Match
			content  string
			metadata []byte
		)
		if err := rows.Scan(&m.ID, &content, &metadata, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Payload); err != nil {
				return nil, fmt.Errorf("decode payload for %s: %w", m.ID, err)
			}
		}
		m.Payload.CourseID = courseID
		m.Payload.Text = content
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, vs.fail("read rows", err)
	}
	rows.Close()
	if err := tx.Commit(ctx); err != nil {
		return nil, vs.fail("commit transaction", err)
	}

	sortMatches(matches)
	return matches, nil
}

func (vs *PGVector) Delete(ctx context.Context, courseID models.CourseID) error {
	if courseID == "" {
		return models.ErrInvalidCourse
	}
	if _, err := vs.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE course_id = $1", vs.table), string(courseID)); err != nil {
		return vs.fail("delete course", err)
	}
	return nil
}

func (vs *PGVector) DeleteIDs(ctx context.Context, courseID models.CourseID, ids []string) error {
	if courseID == "" {
		return models.ErrInvalidCourse
	}
	if len(ids) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE course_id = $1 AND id = ANY($2)", vs.table)
	if _, err := vs.pool.Exec(ctx, stmt, string(courseID), ids); err != nil {
		return vs.fail("delete entries", err)
	}
	return nil
}

func (vs *PGVector) Count(ctx context.Context, courseID models.CourseID) (int, error) {
	var n int64
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE course_id = $1", vs.table), string(courseID)).Scan(&n)
	if err != nil {
		return 0, vs.fail("count entries", err)
	}
	return int(n), nil
}

func (vs *PGVector) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func (vs *PGVector) fail(op string, err error) error {
	return models.Classify(fmt.Errorf("pgvector %s: %w", op, err), models.ErrIndexUnavailable)
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
