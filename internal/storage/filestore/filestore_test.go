package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/seed"
	"github.com/tatianab/atelos/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestScenarioRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	def, err := seed.Scenario(seed.ShelterZero)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, def); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx, seed.ShelterZero)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Title != def.Title || len(got.EndingArchetypes) != len(def.EndingArchetypes) {
		t.Errorf("Expected %q with %d endings, got %q with %d", def.Title, len(def.EndingArchetypes), got.Title, len(got.EndingArchetypes))
	}
	if *got.EndCondition.Value != 7 {
		t.Errorf("Expected end condition value 7, got %d", *got.EndCondition.Value)
	}
}

func TestListActiveHidesDrafts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	active, _ := seed.Scenario(seed.ShelterZero)
	draft, _ := seed.Scenario(seed.ShelterZero)
	draft.ScenarioID = "draft-one"
	draft.Status = models.StatusDraft
	testing_, _ := seed.Scenario(seed.ShelterZero)
	testing_.ScenarioID = "in-testing"
	testing_.Status = models.StatusTesting

	for _, def := range []*models.ScenarioDefinition{active, draft, testing_} {
		if err := s.Save(ctx, def); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ScenarioID != seed.ShelterZero {
		t.Fatalf("Expected only the active scenario, got %+v", list)
	}

	if _, err := storage.LoadPlayable(ctx, s, "draft-one"); !apperrors.IsCode(err, apperrors.NotFound) {
		t.Errorf("Expected draft to be not found, got %v", err)
	}
	if _, err := storage.LoadPlayable(ctx, s, "in-testing"); err != nil {
		t.Errorf("Expected testing scenario to be playable, got %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Load(context.Background(), "nope"); !apperrors.IsCode(err, apperrors.NotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := s.LoadSession(context.Background(), "nope"); !apperrors.IsCode(err, apperrors.NotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := s.Load(context.Background(), "../etc"); !apperrors.IsCode(err, apperrors.Validation) {
		t.Errorf("Expected invalid id, got %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	def, _ := seed.Scenario(seed.ShelterZero)
	ps := models.NewSession("abc", def, time.Now())
	ps.Apply(def, "ration food", "We eat less.", models.Delta{StatChanges: map[string]int{"food": -5}}, time.Now())
	ps.Relationships["rel-medic-engineer"] = models.RelationshipState{Stage: models.StageHinted, Value: 40}
	ps.Summary = "the first day"

	if err := s.SaveSession(ctx, ps); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err := s.LoadSession(ctx, "abc")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.StatValues["food"] != 55 {
		t.Errorf("Expected food 55, got %d", got.StatValues["food"])
	}
	if got.Stage("rel-medic-engineer") != models.StageHinted {
		t.Errorf("Expected hinted stage, got %v", got.Stage("rel-medic-engineer"))
	}
	if len(got.ActionHistory) != 1 || got.ActionHistory[0].Decision != "ration food" {
		t.Errorf("Unexpected history %+v", got.ActionHistory)
	}
	if got.Summary != "the first day" {
		t.Errorf("Expected summary to survive, got %q", got.Summary)
	}

	ids, err := s.ListSessions(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "abc" {
		t.Errorf("Expected [abc], got %v (%v)", ids, err)
	}
}

func TestLoadSessionIgnoresHistoryAheadOfState(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	def, _ := seed.Scenario(seed.ShelterZero)
	ps := models.NewSession("abc", def, time.Now())
	ps.Apply(def, "one", "", models.Delta{}, time.Now())
	if err := s.SaveSession(ctx, ps); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash after the history of turn 2 was written.
	ahead := *ps
	ahead.ActionHistory = append([]models.ActionRecord(nil), ps.ActionHistory...)
	ahead.Apply(def, "two", "", models.Delta{}, time.Now())
	path := filepath.Join(s.dir, sessionsDir, "abc", historyFile)
	if err := writeYAML(path, sessionHistory{Entries: ahead.ActionHistory}); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadSession(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if got.Turn != 1 || len(got.ActionHistory) != 1 {
		t.Errorf("Expected turn 1 with one record, got turn %d with %d", got.Turn, len(got.ActionHistory))
	}
}

func TestCanceledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ListActive(ctx); err == nil {
		t.Error("Expected error for canceled context")
	}
	if _, err := os.Stat(filepath.Join(s.dir, scenariosDir)); err != nil {
		t.Errorf("Expected scenarios dir to exist: %v", err)
	}
}

func TestSaveKeepsVersionSnapshots(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	def, _ := seed.Scenario(seed.ShelterZero)
	if err := s.Save(ctx, def); err != nil {
		t.Fatal(err)
	}
	if def.Version != 1 {
		t.Fatalf("Expected first save to be version 1, got %d", def.Version)
	}
	ps := models.NewSession("pinned", def, time.Now().UTC())

	edited, _ := seed.Scenario(seed.ShelterZero)
	edited.Status = models.StatusDraft
	edited.ScenarioStats[0].Max = 10
	if err := s.Save(ctx, edited); err != nil {
		t.Fatal(err)
	}
	if edited.Version != 2 {
		t.Fatalf("Expected second save to be version 2, got %d", edited.Version)
	}

	latest, err := s.Load(ctx, seed.ShelterZero)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Version != 2 || latest.Status != models.StatusDraft {
		t.Errorf("Expected latest to be the draft version 2, got %d %s", latest.Version, latest.Status)
	}

	pinned, err := storage.LoadForSession(ctx, s, ps)
	if err != nil {
		t.Fatal(err)
	}
	if pinned.Version != 1 || pinned.Status != models.StatusActive || pinned.ScenarioStats[0].Max != 100 {
		t.Errorf("Expected the session's version 1 snapshot, got version %d %s max %d",
			pinned.Version, pinned.Status, pinned.ScenarioStats[0].Max)
	}

	if _, err := s.LoadVersion(ctx, seed.ShelterZero, 9); !apperrors.IsCode(err, apperrors.NotFound) {
		t.Errorf("Expected missing version to be not found, got %v", err)
	}

	list, err := s.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("Expected snapshots to stay out of the lobby, got %+v", list)
	}
}
