package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteresolve/internal/db"
	"github.com/sells-group/siteresolve/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run": `INSERT INTO runs (id, source, output, mode, status, brand_entries, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"finish_run": `UPDATE runs SET status = $1, stats = $2, error = $3, updated_at = $4 WHERE id = $5`,
	"get_run":    `SELECT ` + runColumns + ` FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source        TEXT NOT NULL,
	output        TEXT NOT NULL DEFAULT '',
	mode          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	stats         JSONB,
	error         TEXT NOT NULL DEFAULT '',
	brand_entries INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS resolutions (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	row_index       INTEGER NOT NULL,
	facility_name   TEXT NOT NULL,
	website         TEXT NOT NULL,
	is_known_brand  BOOLEAN NOT NULL DEFAULT false,
	via             TEXT NOT NULL DEFAULT '',
	ratio           DOUBLE PRECISION NOT NULL DEFAULT 0,
	matched_brand   TEXT NOT NULL DEFAULT '',
	candidate_count INTEGER NOT NULL DEFAULT 0,
	malformed       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, row_index)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_resolutions_via ON resolutions(run_id, via);
`

// resolutionColumns is the COPY column order for SaveResolutions.
var resolutionColumns = []string{
	"run_id", "row_index", "facility_name", "website", "is_known_brand",
	"via", "ratio", "matched_brand", "candidate_count", "malformed",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

func (s *PostgresStore) CreateRun(ctx context.Context, nr model.NewRun) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, output, mode, status, brand_entries, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, nr.Source, nr.Output, nr.Mode, string(model.RunStatusRunning), nr.BrandEntries, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:           id,
		Source:       nr.Source,
		Output:       nr.Output,
		Mode:         nr.Mode,
		Status:       model.RunStatusRunning,
		BrandEntries: nr.BrandEntries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats *model.RunStats) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, "", stats)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr string, stats *model.RunStats) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, runErr, stats)
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status model.RunStatus, runErr string, stats *model.RunStats) error {
	var statsJSON []byte
	if stats != nil {
		var err error
		statsJSON, err = json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal stats")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), statsJSON, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit, defaultListLimit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveResolutions replaces the run's resolutions using COPY inside a
// transaction.
func (s *PostgresStore) SaveResolutions(ctx context.Context, runID string, resolutions []model.Resolution) (int64, error) {
	rows := make([][]any, len(resolutions))
	for i, r := range resolutions {
		rows[i] = []any{
			runID, r.RowIndex, r.FacilityName, r.Website, r.IsKnownBrand,
			r.Via, r.Ratio, r.MatchedBrand, r.CandidateCount, r.Malformed,
		}
	}

	n, err := db.CopyInTx(ctx, s.pool,
		`DELETE FROM resolutions WHERE run_id = $1`, []any{runID},
		"resolutions", resolutionColumns, rows)
	return n, eris.Wrapf(err, "postgres: save resolutions for run %s", runID)
}

func (s *PostgresStore) ListResolutions(ctx context.Context, runID string, filter ResolutionFilter) ([]model.Resolution, error) {
	query := `SELECT run_id, row_index, facility_name, website, is_known_brand, via, ratio, matched_brand, candidate_count, malformed
		FROM resolutions WHERE run_id = $1`
	args := []any{runID}
	argIdx := 2

	if filter.Via != "" {
		query += fmt.Sprintf(` AND via = $%d`, argIdx)
		args = append(args, viaValue(filter.Via))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY row_index LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit, defaultResolutionLimit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list resolutions for run %s", runID)
	}
	defer rows.Close()

	var out []model.Resolution
	for rows.Next() {
		var r model.Resolution
		if err := rows.Scan(&r.RunID, &r.RowIndex, &r.FacilityName, &r.Website, &r.IsKnownBrand,
			&r.Via, &r.Ratio, &r.MatchedBrand, &r.CandidateCount, &r.Malformed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolution")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list resolutions iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var statsJSON []byte

	if err := row.Scan(&r.ID, &r.Source, &r.Output, &r.Mode, &r.Status, &statsJSON, &r.Error, &r.BrandEntries, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if len(statsJSON) > 0 {
		r.Stats = &model.RunStats{}
		if err := json.Unmarshal(statsJSON, r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return &r, nil
}
