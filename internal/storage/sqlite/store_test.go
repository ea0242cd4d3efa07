package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/seed"
	"github.com/tatianab/atelos/internal/storage"
	"github.com/tatianab/atelos/internal/storage/sqlite/migrations"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "atelos.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveCreatesVersions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	def, err := seed.Scenario(seed.ShelterZero)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, def); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ps := models.NewSession("pinned", def, time.Now().UTC())
	if ps.ScenarioVersion != 1 {
		t.Fatalf("Expected the session to pin version 1, got %d", ps.ScenarioVersion)
	}
	def.Title = "Shelter Zero (revised)"
	def.Status = models.StatusDraft
	if err := s.Save(ctx, def); err != nil {
		t.Fatalf("Save: %v", err)
	}

	versions, err := s.Versions(ctx, seed.ShelterZero)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 || versions[0].Version != 1 || versions[1].Status != models.StatusDraft {
		t.Fatalf("Unexpected versions %+v", versions)
	}

	latest, err := s.Load(ctx, seed.ShelterZero)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Title != "Shelter Zero (revised)" {
		t.Errorf("Expected latest title, got %q", latest.Title)
	}
	first, err := s.LoadVersion(ctx, seed.ShelterZero, 1)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != models.StatusActive {
		t.Errorf("Expected first version to stay active, got %v", first.Status)
	}
	pinned, err := storage.LoadForSession(ctx, s, ps)
	if err != nil {
		t.Fatal(err)
	}
	if pinned.Version != 1 || pinned.Title == latest.Title {
		t.Errorf("Expected the session's snapshot, got version %d %q", pinned.Version, pinned.Title)
	}
	if latest.Version != 2 {
		t.Errorf("Expected latest version 2, got %d", latest.Version)
	}

	// The latest version is a draft, so the lobby must not list it.
	list, err := s.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("Expected no listed scenarios, got %+v", list)
	}
	if _, err := storage.LoadPlayable(ctx, s, seed.ShelterZero); !apperrors.IsCode(err, apperrors.NotFound) {
		t.Errorf("Expected draft to be not found, got %v", err)
	}
}

func TestListActive(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	def, _ := seed.Scenario(seed.ShelterZero)
	if err := s.Save(ctx, def); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Title != def.Title {
		t.Fatalf("Expected one summary, got %+v", list)
	}
}

func TestSessionUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	def, _ := seed.Scenario(seed.ShelterZero)
	ps := models.NewSession("sess-1", def, time.Now())
	if err := s.SaveSession(ctx, ps); err != nil {
		t.Fatal(err)
	}
	ps.Apply(def, "scout", "Nothing outside.", models.Delta{StatChanges: map[string]int{"safety": 10}}, time.Now())
	ps.Relationships["rel-leader-soldier"] = models.RelationshipState{Stage: models.StageRevealed, Value: -30}
	if err := s.SaveSession(ctx, ps); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Turn != 1 || got.StatValues["safety"] != 50 {
		t.Errorf("Expected turn 1 safety 50, got %d/%d", got.Turn, got.StatValues["safety"])
	}
	if got.Stage("rel-leader-soldier") != models.StageRevealed {
		t.Errorf("Expected revealed, got %v", got.Stage("rel-leader-soldier"))
	}
	if _, err := s.LoadSession(ctx, "missing"); !apperrors.IsCode(err, apperrors.NotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := applyMigrations(context.Background(), s.sqlDB, migrations.FS); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;\n")
	if got != "\nCREATE TABLE a (x);\n" {
		t.Errorf("Unexpected up section %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Error("Expected content without markers to pass through")
	}
}
