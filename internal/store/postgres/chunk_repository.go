// Package postgres persists serialized chunks in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"example.com/powerchunk/internal/chunk"
)

const defaultChunksTable = "power_chunks"

var (
	ErrNilDB        = errors.New("chunk repo: nil db")
	ErrInvalidTable = errors.New("chunk repo: invalid table name")

	tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// Open connects through the pgx database/sql driver and pings the server.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// ChunkRepository stores one row per chunk with the full document as JSONB.
type ChunkRepository struct {
	db    *sql.DB
	table string
}

// Option configures the repository.
type Option func(*ChunkRepository)

// WithTable overrides the chunks table name.
func WithTable(table string) Option {
	return func(r *ChunkRepository) {
		if r != nil && table != "" {
			r.table = table
		}
	}
}

// NewChunkRepository constructs a repository.
func NewChunkRepository(db *sql.DB, opts ...Option) (*ChunkRepository, error) {
	r := &ChunkRepository{db: db, table: defaultChunksTable}
	for _, opt := range opts {
		opt(r)
	}
	if !tableName.MatchString(r.table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, r.table)
	}
	return r, nil
}

// EnsureSchema creates the chunks table when missing.
func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return ErrNilDB
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	chunk_id   TEXT PRIMARY KEY,
	device     TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	start_at   TIMESTAMP NOT NULL,
	end_at     TIMESTAMP NOT NULL,
	batt_pres  TEXT NOT NULL,
	power_src  TEXT NOT NULL,
	payload    JSON NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[1]s_device_seq_idx ON %[1]s (device, seq)`, r.table))
	return err
}

// BeginRun opens a transaction that replaces every stored chunk of device.
func (r *ChunkRepository) BeginRun(ctx context.Context, device string) (chunk.Batch, error) {
	if r == nil || r.db == nil {
		return nil, ErrNilDB
	}
	if device == "" {
		return nil, errors.New("chunk repo: empty device")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE device = $1`, r.table), device); err != nil {
		tx.Rollback()
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (chunk_id, device, seq, start_at, end_at, batt_pres, power_src, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (chunk_id) DO UPDATE SET
	device = EXCLUDED.device, seq = EXCLUDED.seq, start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at,
	batt_pres = EXCLUDED.batt_pres, power_src = EXCLUDED.power_src, payload = EXCLUDED.payload`, r.table))
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return &runWriter{tx: tx, stmt: stmt, device: device}, nil
}

type runWriter struct {
	tx     *sql.Tx
	stmt   *sql.Stmt
	device string
	seq    int
}

func (w *runWriter) Write(ctx context.Context, doc chunk.Document) error {
	start, err := doc.Start()
	if err != nil {
		return fmt.Errorf("chunk %s: %w", doc.ChunkID, err)
	}
	end, err := doc.End()
	if err != nil {
		return fmt.Errorf("chunk %s: %w", doc.ChunkID, err)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	w.seq++
	_, err = w.stmt.ExecContext(ctx, doc.ChunkID, w.device, w.seq, start, end, doc.BattPres, doc.PowerSrc, payload)
	return err
}

func (w *runWriter) Commit() error {
	w.stmt.Close()
	return w.tx.Commit()
}

func (w *runWriter) Rollback() error {
	w.stmt.Close()
	err := w.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// ListChunks returns the chunks of device in emission order.
func (r *ChunkRepository) ListChunks(ctx context.Context, device string) ([]chunk.Document, error) {
	if r == nil || r.db == nil {
		return nil, ErrNilDB
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT payload
FROM %s
WHERE device = $1
ORDER BY seq ASC`, r.table), device)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []chunk.Document
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var doc chunk.Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ChunkSpan is the stored time range of one chunk.
type ChunkSpan struct {
	ChunkID string
	Start   time.Time
	End     time.Time
}

// ListSpans returns the chunks of device overlapping [from, to).
func (r *ChunkRepository) ListSpans(ctx context.Context, device string, from, to time.Time) ([]ChunkSpan, error) {
	if r == nil || r.db == nil {
		return nil, ErrNilDB
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT chunk_id, start_at, end_at
FROM %s
WHERE device = $1 AND end_at >= $2 AND start_at < $3
ORDER BY seq ASC`, r.table), device, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var spans []ChunkSpan
	for rows.Next() {
		var s ChunkSpan
		if err := rows.Scan(&s.ChunkID, &s.Start, &s.End); err != nil {
			return nil, err
		}
		spans = append(spans, s)
	}
	return spans, rows.Err()
}
