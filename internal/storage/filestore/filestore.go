// Package filestore keeps scenarios and play sessions as YAML files under a
// save directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/storage"
)

// DefaultDir is used when New is given an empty directory.
const DefaultDir = ".saves"

const (
	scenariosDir = "scenarios"
	versionsDir  = "versions"
	sessionsDir  = "sessions"
	stateFile    = "state.yaml"
	historyFile  = "history.yaml"
)

// Store is a YAML-on-disk backend. Layout:
//
//	<dir>/scenarios/<scenarioId>.yaml
//	<dir>/scenarios/versions/<scenarioId>/<version>.yaml
//	<dir>/sessions/<sessionId>/state.yaml
//	<dir>/sessions/<sessionId>/history.yaml
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.RWMutex
}

var _ storage.Store = (*Store)(nil)

// New prepares the directory tree and returns a Store rooted at dir.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, sub := range []string{filepath.Join(scenariosDir, versionsDir), sessionsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return &Store{dir: dir, logger: logger.With("component", "filestore")}, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) Load(ctx context.Context, scenarioID string) (*models.ScenarioDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := storage.CheckID("scenario", scenarioID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var def models.ScenarioDefinition
	if err := readYAML(s.scenarioPath(scenarioID), &def); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.NotFound("scenario", scenarioID)
		}
		return nil, fmt.Errorf("load scenario %q: %w", scenarioID, err)
	}
	return &def, nil
}

// LoadVersion returns the snapshot written when version was saved.
func (s *Store) LoadVersion(ctx context.Context, scenarioID string, version int) (*models.ScenarioDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := storage.CheckID("scenario", scenarioID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var def models.ScenarioDefinition
	if err := readYAML(s.versionPath(scenarioID, version), &def); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.NotFound("scenario", fmt.Sprintf("%s@%d", scenarioID, version))
		}
		return nil, fmt.Errorf("load scenario %q version %d: %w", scenarioID, version, err)
	}
	return &def, nil
}

func (s *Store) ListActive(ctx context.Context) ([]models.ScenarioSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, scenariosDir))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	out := []models.ScenarioSummary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		var def models.ScenarioDefinition
		if err := readYAML(filepath.Join(s.dir, scenariosDir, entry.Name()), &def); err != nil {
			s.logger.Warn("skipping unreadable scenario", "file", entry.Name(), "error", err)
			continue
		}
		if def.Status.Listed() {
			out = append(out, def.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScenarioID < out[j].ScenarioID })
	return out, nil
}

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
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest models.ScenarioDefinition
	if err := readYAML(s.scenarioPath(def.ScenarioID), &latest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read scenario %q: %w", def.ScenarioID, err)
	}
	def.Version = latest.Version + 1
	def.UpdatedAt = time.Now().UTC()

	// The snapshot goes first so the latest file never names a version that
	// was not written.
	if err := os.MkdirAll(filepath.Dir(s.versionPath(def.ScenarioID, def.Version)), 0o755); err != nil {
		return err
	}
	if err := writeYAML(s.versionPath(def.ScenarioID, def.Version), def); err != nil {
		return fmt.Errorf("save scenario %q version %d: %w", def.ScenarioID, def.Version, err)
	}
	if err := writeYAML(s.scenarioPath(def.ScenarioID), def); err != nil {
		return fmt.Errorf("save scenario %q: %w", def.ScenarioID, err)
	}
	s.logger.Info("scenario saved", "scenario_id", def.ScenarioID, "version", def.Version, "status", def.Status)
	return nil
}

// sessionHistory is stored apart from the state so the state file stays
// small enough to read by hand.
type sessionHistory struct {
	Summary string                `yaml:"summary,omitempty"`
	Entries []models.ActionRecord `yaml:"entries"`
}

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
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, sessionsDir, ps.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	state := *ps
	state.ActionHistory = nil
	state.Summary = ""
	history := sessionHistory{Summary: ps.Summary, Entries: ps.ActionHistory}

	// History first: a crash between the two writes leaves the previous state
	// pointing at a superset of its history, which loads cleanly.
	if err := writeYAML(filepath.Join(dir, historyFile), history); err != nil {
		return fmt.Errorf("save session %q history: %w", ps.SessionID, err)
	}
	if err := writeYAML(filepath.Join(dir, stateFile), state); err != nil {
		return fmt.Errorf("save session %q state: %w", ps.SessionID, err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (*models.PlaySession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := storage.CheckID("session", sessionID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.dir, sessionsDir, sessionID)
	var ps models.PlaySession
	if err := readYAML(filepath.Join(dir, stateFile), &ps); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.NotFound("session", sessionID)
		}
		return nil, fmt.Errorf("load session %q: %w", sessionID, err)
	}
	var history sessionHistory
	if err := readYAML(filepath.Join(dir, historyFile), &history); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load session %q history: %w", sessionID, err)
	}
	ps.Summary = history.Summary
	// Only the records the state has accounted for belong to this snapshot.
	entries := history.Entries
	for len(entries) > 0 && entries[len(entries)-1].Turn > ps.Turn {
		entries = entries[:len(entries)-1]
	}
	ps.ActionHistory = entries
	return &ps, nil
}

// ListSessions returns the ids of saved sessions, sorted.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, sessionsDir))
	if err != nil {
		return nil, err
	}
	sessions := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// state.yaml marks a complete save.
		if _, err := os.Stat(filepath.Join(s.dir, sessionsDir, entry.Name(), stateFile)); err == nil {
			sessions = append(sessions, entry.Name())
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (s *Store) scenarioPath(id string) string {
	return filepath.Join(s.dir, scenariosDir, id+".yaml")
}

func (s *Store) versionPath(id string, version int) string {
	return filepath.Join(s.dir, scenariosDir, versionsDir, id, strconv.Itoa(version)+".yaml")
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// writeYAML replaces path atomically so a failed write keeps the previous
// file intact.
func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
