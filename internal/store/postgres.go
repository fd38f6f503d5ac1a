package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/persona-cli/internal/db"
	"github.com/sells-group/persona-cli/internal/model"
)

// PostgresStore implements Repository using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	mu      sync.Mutex
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var upsertRunSQL = mustUpsertSQL(db.UpsertConfig{
	Table:        "runs",
	Columns:      []string{"id", "subject", "seq", "record", "created_at", "updated_at"},
	ConflictKeys: []string{"id"},
	UpdateCols:   []string{"subject", "seq", "record", "updated_at"},
	Exprs:        map[string]string{"seq": "nextval('run_upsert_seq')"},
})

func mustUpsertSQL(cfg db.UpsertConfig) string {
	sql, err := db.UpsertSQL(cfg)
	if err != nil {
		panic(err)
	}
	return sql
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE SEQUENCE IF NOT EXISTS run_upsert_seq;

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	seq        BIGINT NOT NULL,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_seq ON runs(seq DESC);
CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *model.RunRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.pool.Exec(ctx, upsertRunSQL,
		rec.ID, rec.Subject, data, rec.CreatedAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return persistErr("postgres: upsert run "+rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.RunRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM runs WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, persistErr("postgres: get run "+id, err)
	}
	return decodeRecord(data)
}

func (s *PostgresStore) GetLatest(ctx context.Context) (*model.RunRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("postgres: get latest run", err)
	}
	return decodeRecord(data)
}

func (s *PostgresStore) List(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	query := `SELECT record FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Subject != "" {
		query += fmt.Sprintf(` AND subject = $%d`, argIdx)
		args = append(args, filter.Subject)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY seq DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("postgres: list runs", err)
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, persistErr("postgres: scan run", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("postgres: list runs", err)
	}
	return out, nil
}
