package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/adpilot/adpilot/internal/optimizer"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS ab_tests (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    campaign_id TEXT NOT NULL,
    adset_id TEXT NOT NULL,
    metric TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    auto_apply INTEGER NOT NULL DEFAULT 0,
    variants TEXT NOT NULL,
    winner TEXT,
    results TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    evaluated_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_ab_tests_status ON ab_tests(status);
CREATE INDEX IF NOT EXISTS idx_ab_tests_campaign ON ab_tests(campaign_id);

CREATE TABLE IF NOT EXISTS optimization_runs (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL,
    date_preset TEXT,
    dry_run INTEGER NOT NULL DEFAULT 0,
    rules TEXT NOT NULL,
    verdicts TEXT NOT NULL,
    actions TEXT NOT NULL,
    rules_count INTEGER NOT NULL,
    triggered_count INTEGER NOT NULL,
    actions_count INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_runs_campaign ON optimization_runs(campaign_id);
CREATE INDEX IF NOT EXISTS idx_runs_created ON optimization_runs(created_at);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// newTestID mints experiment IDs of the form "ab_<12 hex chars>".
func newTestID() string {
	return "ab_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (s *SQLiteStore) CreateTest(ctx context.Context, name, campaignID, adsetID, metric string, autoApply bool, variants []TestVariant) (*ABTest, error) {
	if len(variants) < 2 {
		return nil, fmt.Errorf("a test needs at least 2 variants, got %d", len(variants))
	}

	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variants: %w", err)
	}

	id := newTestID()
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ab_tests (id, name, campaign_id, adset_id, metric, status, auto_apply, variants, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'running', ?, ?, ?, ?)`,
		id, name, campaignID, adsetID, metric, boolToInt(autoApply), string(variantsJSON), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert test: %w", err)
	}

	return &ABTest{
		ID:         id,
		Name:       name,
		CampaignID: campaignID,
		AdSetID:    adsetID,
		Metric:     metric,
		Status:     StatusRunning,
		AutoApply:  autoApply,
		Variants:   variants,
		CreatedAt:  time.Unix(now, 0),
		UpdatedAt:  time.Unix(now, 0),
	}, nil
}

const testColumns = `id, name, campaign_id, adset_id, metric, status, auto_apply, variants, winner, results, created_at, updated_at, evaluated_at`

func (s *SQLiteStore) GetTest(ctx context.Context, id string) (*ABTest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+testColumns+` FROM ab_tests WHERE id = ?`, id)

	test, err := scanTest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

func (s *SQLiteStore) ListTests(ctx context.Context) ([]*ABTest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+testColumns+` FROM ab_tests ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []*ABTest
	for rows.Next() {
		test, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		tests = append(tests, test)
	}
	return tests, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (*ABTest, error) {
	var test ABTest
	var autoApply int
	var variantsJSON string
	var winnerJSON, resultsJSON sql.NullString
	var createdAt, updatedAt int64
	var evaluatedAt sql.NullInt64

	err := row.Scan(&test.ID, &test.Name, &test.CampaignID, &test.AdSetID, &test.Metric,
		&test.Status, &autoApply, &variantsJSON, &winnerJSON, &resultsJSON,
		&createdAt, &updatedAt, &evaluatedAt)
	if err != nil {
		return nil, err
	}

	test.AutoApply = autoApply != 0
	if err := json.Unmarshal([]byte(variantsJSON), &test.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if winnerJSON.Valid && winnerJSON.String != "" {
		test.Winner = &Winner{}
		if err := json.Unmarshal([]byte(winnerJSON.String), test.Winner); err != nil {
			return nil, fmt.Errorf("failed to unmarshal winner: %w", err)
		}
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &test.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}

	test.CreatedAt = time.Unix(createdAt, 0)
	test.UpdatedAt = time.Unix(updatedAt, 0)
	if evaluatedAt.Valid {
		t := time.Unix(evaluatedAt.Int64, 0)
		test.EvaluatedAt = &t
	}
	return &test, nil
}

// SaveEvaluation persists the outcome of one evaluation call: status, winner,
// per-variant paused flags and the raw per-ad metrics.
func (s *SQLiteStore) SaveEvaluation(ctx context.Context, test *ABTest) error {
	variantsJSON, err := json.Marshal(test.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}

	var winnerJSON, resultsJSON []byte
	if test.Winner != nil {
		winnerJSON, err = json.Marshal(test.Winner)
		if err != nil {
			return fmt.Errorf("failed to marshal winner: %w", err)
		}
	}
	if test.Results != nil {
		resultsJSON, err = json.Marshal(test.Results)
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
	}

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`UPDATE ab_tests
		 SET status = ?, variants = ?, winner = ?, results = ?, updated_at = ?, evaluated_at = ?
		 WHERE id = ?`,
		string(test.Status), string(variantsJSON), nullableString(winnerJSON), nullableString(resultsJSON),
		now, now, test.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteTest(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ab_tests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete test: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordOptimization implements optimizer.AuditSink.
func (s *SQLiteStore) RecordOptimization(ctx context.Context, rec optimizer.RunRecord) error {
	rulesJSON, err := json.Marshal(rec.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	verdictsJSON, err := json.Marshal(rec.Verdicts)
	if err != nil {
		return fmt.Errorf("failed to marshal verdicts: %w", err)
	}
	actionsJSON, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	triggered := 0
	for _, v := range rec.Verdicts {
		if v.Triggered {
			triggered++
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO optimization_runs
		 (id, campaign_id, date_preset, dry_run, rules, verdicts, actions, rules_count, triggered_count, actions_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CampaignID, rec.Window.Preset, boolToInt(rec.DryRun),
		string(rulesJSON), string(verdictsJSON), string(actionsJSON),
		len(rec.Rules), triggered, len(rec.Actions), rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, campaign_id, date_preset, dry_run, rules_count, triggered_count, actions_count, created_at
		 FROM optimization_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var dryRun int
		var createdAt int64
		if err := rows.Scan(&run.ID, &run.CampaignID, &run.DatePreset, &dryRun,
			&run.Rules, &run.Triggered, &run.Actions, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.DryRun = dryRun != 0
		run.CreatedAt = time.Unix(createdAt, 0)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
