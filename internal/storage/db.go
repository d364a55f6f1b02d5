package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// PostgresIndex stores points in a single pgvector table. Query uses the
// cosine distance operator so Postgres picks the candidates.
type PostgresIndex struct {
	connection *sql.DB
	dim        int
	log        *zap.Logger
}

func NewPostgresIndex(ctx context.Context, dataSourceName string, dim int, log *zap.Logger) (*PostgresIndex, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}

	// Connection pool tuning
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	idx := &PostgresIndex{connection: db, dim: dim, log: log}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("postgres vector index ready", zap.Int("dimension", dim))
	return idx, nil
}

func (db *PostgresIndex) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS points (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`, db.dim),
		`CREATE INDEX IF NOT EXISTS points_embedding_cosine ON points USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS points_payload ON points USING gin (payload)`,
	}
	for _, stmt := range stmts {
		if _, err := db.connection.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (db *PostgresIndex) Backend() string { return "postgres" }

func (db *PostgresIndex) Close() error {
	if err := db.connection.Close(); err != nil {
		db.log.Error("closing the database connection", zap.Error(err))
		return err
	}
	return nil
}

func (db *PostgresIndex) Upsert(ctx context.Context, collection string, points ...Point) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points, db.dim); err != nil {
		return err
	}

	tx, err := db.connection.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO points (collection, id, embedding, payload)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (collection, id) DO UPDATE
	            SET embedding = EXCLUDED.embedding,
	                payload = EXCLUDED.payload,
	                updated_at = NOW()`
	for _, p := range points {
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, collection, p.ID, pgvector.NewVector(p.Vector), raw); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", collection, p.ID, err)
		}
	}
	return tx.Commit()
}

func (db *PostgresIndex) Retrieve(ctx context.Context, collection, id string, withVector bool) (*Point, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	var vec pgvector.Vector
	var raw []byte
	err := db.connection.QueryRowContext(ctx,
		`SELECT embedding, payload FROM points WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&vec, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("retrieve %s/%s: %w", collection, id, err)
	}

	p := Point{ID: id}
	if p.Payload, err = decodeJSONPayload(raw); err != nil {
		return nil, err
	}
	if withVector {
		p.Vector = vec.Slice()
	}
	return &p, nil
}

func (db *PostgresIndex) Scroll(ctx context.Context, collection string, filter Filter, limit int, withVector bool) ([]Point, error) {
	where, args, err := whereClause(collection, filter, 1)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, embedding, payload FROM points WHERE ` + where + ` ORDER BY id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scroll %s: %w", collection, err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		var vec pgvector.Vector
		var raw []byte
		if err := rows.Scan(&p.ID, &vec, &raw); err != nil {
			return nil, fmt.Errorf("scroll %s: %w", collection, err)
		}
		if p.Payload, err = decodeJSONPayload(raw); err != nil {
			return nil, err
		}
		if withVector {
			p.Vector = vec.Slice()
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (db *PostgresIndex) Latest(ctx context.Context, collection string, filter Filter, orderKey string) (*Point, error) {
	if err := validateOrderKey(orderKey); err != nil {
		return nil, err
	}
	where, args, err := whereClause(collection, filter, 1)
	if err != nil {
		return nil, err
	}
	args = append(args, orderKey)
	query := fmt.Sprintf(`SELECT id, payload FROM points WHERE %s ORDER BY payload->>$%d DESC, id DESC LIMIT 1`, where, len(args))

	var p Point
	var raw []byte
	if err := db.connection.QueryRowContext(ctx, query, args...).Scan(&p.ID, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest %s: %w", collection, err)
	}
	if p.Payload, err = decodeJSONPayload(raw); err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *PostgresIndex) Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if len(vector) != db.dim {
		return nil, fmt.Errorf("query vector: expected %d dimensions, got %d", db.dim, len(vector))
	}
	where, args, err := whereClause(collection, filter, 2)
	if err != nil {
		return nil, err
	}
	args = append([]any{pgvector.NewVector(vector)}, args...)

	query := `SELECT id, embedding, payload, 1 - (embedding <=> $1) AS score
	          FROM points WHERE ` + where + `
	          ORDER BY embedding <=> $1, id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	// The hnsw index spans every collection and the payload filters run
	// after the index scan, so a widened candidate list can still come back
	// short. A short answer is replaced by an exact scan.
	tx, err := db.connection.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, efSearch(limit))); err != nil {
		return nil, fmt.Errorf("query %s: set ef_search: %w", collection, err)
	}
	hits, err := queryHits(ctx, tx, query, args)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	if limit > 0 && len(hits) >= limit {
		return hits, nil
	}

	countWhere, countArgs, err := whereClause(collection, filter, 1)
	if err != nil {
		return nil, err
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM points WHERE `+countWhere, countArgs...).Scan(&n); err != nil {
		return nil, fmt.Errorf("query %s: count: %w", collection, err)
	}
	if len(hits) >= n {
		return hits, nil
	}

	db.log.Debug("approximate query came back short, rescanning exactly",
		zap.String("collection", collection), zap.Int("hits", len(hits)), zap.Int("matching", n))
	if _, err := tx.ExecContext(ctx, `SET LOCAL enable_indexscan = off`); err != nil {
		return nil, fmt.Errorf("query %s: disable index scan: %w", collection, err)
	}
	if hits, err = queryHits(ctx, tx, query, args); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return hits, nil
}

func queryHits(ctx context.Context, tx *sql.Tx, query string, args []any) ([]ScoredPoint, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []ScoredPoint
	for rows.Next() {
		var hit ScoredPoint
		var vec pgvector.Vector
		var raw []byte
		if err := rows.Scan(&hit.ID, &vec, &raw, &hit.Score); err != nil {
			return nil, err
		}
		if hit.Payload, err = decodeJSONPayload(raw); err != nil {
			return nil, err
		}
		hit.Vector = vec.Slice()
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// efSearch sizes the hnsw candidate list for a query limit, within the
// bounds pgvector accepts.
func efSearch(limit int) int {
	const (
		minEF = 40
		maxEF = 1000
	)
	switch {
	case limit <= minEF:
		return minEF
	case limit >= maxEF:
		return maxEF
	default:
		return limit
	}
}

func (db *PostgresIndex) Delete(ctx context.Context, collection string, ids ...string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := db.connection.ExecContext(ctx,
			`DELETE FROM points WHERE collection = $1 AND id = $2`, collection, id); err != nil {
			return fmt.Errorf("delete %s/%s: %w", collection, id, err)
		}
	}
	return nil
}

func (db *PostgresIndex) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	where, args, err := whereClause(collection, filter, 1)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.connection.QueryRowContext(ctx, `SELECT COUNT(*) FROM points WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// whereClause renders the collection and payload conditions with
// placeholders numbered from first.
func whereClause(collection string, filter Filter, first int) (string, []any, error) {
	if err := validateCollection(collection); err != nil {
		return "", nil, err
	}
	if err := validateFilter(filter); err != nil {
		return "", nil, err
	}

	n := first
	parts := []string{fmt.Sprintf("collection = $%d", n)}
	args := []any{collection}
	for _, c := range filter.Must {
		parts = append(parts, fmt.Sprintf("payload->>$%d = $%d", n+1, n+2))
		args = append(args, c.Key, payloadText(c.Value))
		n += 2
	}
	return strings.Join(parts, " AND "), args, nil
}

// payloadText renders v the way ->> prints the JSON value.
func payloadText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func decodeJSONPayload(raw []byte) (map[string]any, error) {
	payload := map[string]any{}
	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
