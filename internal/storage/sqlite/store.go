// Package sqlite provides a SQLite-backed scenario and session store.
// Every scenario save is kept as an immutable version.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/storage"
	"github.com/tatianab/atelos/internal/storage/sqlite/migrations"
)

// Store persists scenarios and sessions in SQLite.
type Store struct {
	sqlDB  *sql.DB
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Version describes one saved revision of a scenario.
type Version struct {
	ScenarioID string
	Version    int
	Status     models.Status
	Title      string
	UpdatedAt  time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, logger: logger.With("component", "sqlite")}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns the latest version of a scenario.
func (s *Store) Load(ctx context.Context, scenarioID string) (*models.ScenarioDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.loadVersion(ctx, scenarioID,
		`SELECT version, document FROM scenario_versions WHERE scenario_id = ? ORDER BY version DESC LIMIT 1`,
		scenarioID)
}

// LoadVersion returns a specific saved version of a scenario.
func (s *Store) LoadVersion(ctx context.Context, scenarioID string, version int) (*models.ScenarioDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.loadVersion(ctx, scenarioID,
		`SELECT version, document FROM scenario_versions WHERE scenario_id = ? AND version = ?`,
		scenarioID, version)
}

func (s *Store) loadVersion(ctx context.Context, scenarioID, query string, args ...any) (*models.ScenarioDefinition, error) {
	var (
		version int
		doc     string
	)
	if err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&version, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFound("scenario", scenarioID)
		}
		return nil, fmt.Errorf("load scenario %q: %w", scenarioID, err)
	}
	var def models.ScenarioDefinition
	if err := json.Unmarshal([]byte(doc), &def); err != nil {
		return nil, fmt.Errorf("decode scenario %q: %w", scenarioID, err)
	}
	def.Version = version
	return &def, nil
}

// ListActive returns summaries of scenarios whose latest version is active.
func (s *Store) ListActive(ctx context.Context) ([]models.ScenarioSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT v.scenario_id, v.document
FROM scenario_versions v
JOIN (
    SELECT scenario_id, MAX(version) AS version FROM scenario_versions GROUP BY scenario_id
) latest ON latest.scenario_id = v.scenario_id AND latest.version = v.version
WHERE v.status = ?
ORDER BY v.scenario_id`, models.StatusActive.String())
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	out := []models.ScenarioSummary{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		var def models.ScenarioDefinition
		if err := json.Unmarshal([]byte(doc), &def); err != nil {
			s.logger.Warn("skipping undecodable scenario", "scenario_id", id, "error", err)
			continue
		}
		out = append(out, def.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenarios: %w", err)
	}
	return out, nil
}

// Save stores def as a new version and sets def.Version. Earlier versions
// are never modified.
func (s *Store) Save(ctx context.Context, def *models.ScenarioDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if def == nil {
		return errors.New("save scenario: nil definition")
	}
	if err := storage.CheckID("scenario", def.ScenarioID); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM scenario_versions WHERE scenario_id = ?`,
		def.ScenarioID,
	).Scan(&latest); err != nil {
		return fmt.Errorf("read latest version: %w", err)
	}
	version := latest + 1
	def.Version = version
	def.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode scenario %q: %w", def.ScenarioID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scenario_versions (scenario_id, version, status, title, document, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		def.ScenarioID, version, def.Status.String(), def.Title, string(doc), toMillis(def.UpdatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.Busy, fmt.Sprintf("scenario %q was saved concurrently", def.ScenarioID))
		}
		return fmt.Errorf("insert scenario version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.logger.Info("scenario saved", "scenario_id", def.ScenarioID, "version", version, "status", def.Status)
	return nil
}

// Versions lists the saved versions of a scenario, oldest first.
func (s *Store) Versions(ctx context.Context, scenarioID string) ([]Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT version, status, title, updated_at FROM scenario_versions WHERE scenario_id = ? ORDER BY version`,
		scenarioID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var (
			v       Version
			status  string
			updated int64
		)
		if err := rows.Scan(&v.Version, &status, &v.Title, &updated); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if err := v.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, err
		}
		v.ScenarioID = scenarioID
		v.UpdatedAt = fromMillis(updated)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, storage.NotFound("scenario", scenarioID)
	}
	return out, nil
}

// SaveSession upserts the session snapshot.
func (s *Store) SaveSession(ctx context.Context, ps *models.PlaySession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ps == nil {
		return errors.New("save session: nil session")
	}
	if err := storage.CheckID("session", ps.SessionID); err != nil {
		return err
	}
	doc, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", ps.SessionID, err)
	}
	created := ps.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := ps.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	ended := 0
	if ps.Ended {
		ended = 1
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (session_id, scenario_id, turn, ended, document, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    turn = excluded.turn,
    ended = excluded.ended,
    document = excluded.document,
    updated_at = excluded.updated_at`,
		ps.SessionID, ps.ScenarioID, ps.Turn, ended, string(doc), toMillis(created), toMillis(updated))
	if err != nil {
		return fmt.Errorf("save session %q: %w", ps.SessionID, err)
	}
	return nil
}

// LoadSession returns the last saved snapshot of a session.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*models.PlaySession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT document FROM sessions WHERE session_id = ?`, sessionID).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFound("session", sessionID)
		}
		return nil, fmt.Errorf("load session %q: %w", sessionID, err)
	}
	var ps models.PlaySession
	if err := json.Unmarshal([]byte(doc), &ps); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", sessionID, err)
	}
	return &ps, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
