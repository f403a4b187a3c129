package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/siteresolve/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	output        TEXT NOT NULL DEFAULT '',
	mode          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	stats         TEXT,
	error         TEXT NOT NULL DEFAULT '',
	brand_entries INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS resolutions (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	row_index       INTEGER NOT NULL,
	facility_name   TEXT NOT NULL,
	website         TEXT NOT NULL,
	is_known_brand  INTEGER NOT NULL DEFAULT 0,
	via             TEXT NOT NULL DEFAULT '',
	ratio           REAL NOT NULL DEFAULT 0,
	matched_brand   TEXT NOT NULL DEFAULT '',
	candidate_count INTEGER NOT NULL DEFAULT 0,
	malformed       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, row_index)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_resolutions_via ON resolutions(run_id, via);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, nr model.NewRun) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, output, mode, status, brand_entries, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nr.Source, nr.Output, nr.Mode, string(model.RunStatusRunning), nr.BrandEntries, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats *model.RunStats) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, "", stats)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr string, stats *model.RunStats) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, runErr, stats)
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status model.RunStatus, runErr string, stats *model.RunStats) error {
	var statsJSON sql.NullString
	if stats != nil {
		data, err := json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal stats")
		}
		statsJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), statsJSON, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const runColumns = `id, source, output, mode, status, stats, error, brand_entries, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, defaultListLimit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveResolutions(ctx context.Context, runID string, resolutions []model.Resolution) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM resolutions WHERE run_id = ?`, runID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear resolutions for run %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO resolutions (run_id, row_index, facility_name, website, is_known_brand, via, ratio, matched_brand, candidate_count, malformed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare resolution insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range resolutions {
		if _, err := stmt.ExecContext(ctx,
			runID, r.RowIndex, r.FacilityName, r.Website, r.IsKnownBrand, r.Via, r.Ratio, r.MatchedBrand, r.CandidateCount, r.Malformed,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert resolution %d", r.RowIndex)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit resolutions")
	}
	return int64(len(resolutions)), nil
}

func (s *SQLiteStore) ListResolutions(ctx context.Context, runID string, filter ResolutionFilter) ([]model.Resolution, error) {
	query := `SELECT run_id, row_index, facility_name, website, is_known_brand, via, ratio, matched_brand, candidate_count, malformed
		FROM resolutions WHERE run_id = ?`
	args := []any{runID}

	if filter.Via != "" {
		query += ` AND via = ?`
		args = append(args, viaValue(filter.Via))
	}
	query += ` ORDER BY row_index LIMIT ?`
	args = append(args, limitOr(filter.Limit, defaultResolutionLimit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list resolutions for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Resolution
	for rows.Next() {
		var r model.Resolution
		if err := rows.Scan(&r.RunID, &r.RowIndex, &r.FacilityName, &r.Website, &r.IsKnownBrand,
			&r.Via, &r.Ratio, &r.MatchedBrand, &r.CandidateCount, &r.Malformed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolution")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list resolutions iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var statsJSON sql.NullString

	err := row.Scan(&r.ID, &r.Source, &r.Output, &r.Mode, &r.Status, &statsJSON, &r.Error, &r.BrandEntries, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if statsJSON.Valid {
		r.Stats = &model.RunStats{}
		if err := json.Unmarshal([]byte(statsJSON.String), r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
	}
	return &r, nil
}
