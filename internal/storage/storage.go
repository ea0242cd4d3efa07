// Package storage defines persistence contracts for scenarios and play
// sessions.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
)

// ScenarioStore persists scenario definitions.
type ScenarioStore interface {
	// Load returns the latest saved definition regardless of status.
	Load(ctx context.Context, scenarioID string) (*models.ScenarioDefinition, error)
	// LoadVersion returns the definition exactly as it was saved at version.
	LoadVersion(ctx context.Context, scenarioID string, version int) (*models.ScenarioDefinition, error)
	// ListActive returns summaries of the scenarios listed in the lobby.
	ListActive(ctx context.Context) ([]models.ScenarioSummary, error)
	Save(ctx context.Context, def *models.ScenarioDefinition) error
}

// SessionStore persists play session snapshots. The last successful save is
// what LoadSession returns.
type SessionStore interface {
	LoadSession(ctx context.Context, sessionID string) (*models.PlaySession, error)
	SaveSession(ctx context.Context, s *models.PlaySession) error
}

// Store is implemented by every backend.
type Store interface {
	ScenarioStore
	SessionStore
	Close() error
}

// NotFound builds the NotFound error returned by backends.
func NotFound(kind, id string) error {
	return apperrors.New(apperrors.NotFound, fmt.Sprintf("%s %q not available", kind, id))
}

// LoadPlayable loads a scenario that may be started by direct access. Drafts
// are reported as not found.
func LoadPlayable(ctx context.Context, store ScenarioStore, scenarioID string) (*models.ScenarioDefinition, error) {
	def, err := store.Load(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	if !def.Status.Playable() {
		return nil, NotFound("scenario", scenarioID)
	}
	return def, nil
}

// LoadForSession returns the definition snapshot ps was started on, so later
// saves of the scenario never change a playthrough in progress. Sessions
// started from an unsaved definition fall back to the latest version.
func LoadForSession(ctx context.Context, store ScenarioStore, ps *models.PlaySession) (*models.ScenarioDefinition, error) {
	if ps.ScenarioVersion <= 0 {
		return store.Load(ctx, ps.ScenarioID)
	}
	return store.LoadVersion(ctx, ps.ScenarioID, ps.ScenarioVersion)
}

// CheckID rejects ids that are empty or could escape a storage namespace.
func CheckID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.New(apperrors.Validation, kind+" id is required")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return apperrors.New(apperrors.Validation, fmt.Sprintf("invalid %s id %q", kind, id))
	}
	return nil
}
