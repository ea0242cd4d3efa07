package disclosure

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
)

func testDefinition() *models.ScenarioDefinition {
	return &models.ScenarioDefinition{
		ScenarioID: "pair",
		Characters: []models.Character{
			{RoleID: "A", RoleName: "Medic", CharacterName: "Seoa"},
			{RoleID: "B", RoleName: "Engineer", CharacterName: "Jiho"},
			{RoleID: "C", RoleName: "Soldier", CharacterName: "Minjun"},
		},
		InitialRelationships: []models.Relationship{
			{ID: "R", PersonA: "A", PersonB: "B", Value: 40, Reason: "They are estranged siblings."},
			{ID: "S", PersonA: "B", PersonB: "C", Value: -15, Reason: "Jiho hides a ration cache."},
		},
	}
}

func newTracker() *Tracker {
	return NewTracker(DefaultKeywords(), nil)
}

func TestRelationshipLifecycle(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())
	tr := newTracker()

	if s.Stage("R") != models.StageHidden {
		t.Fatalf("Expected hidden, got %v", s.Stage("R"))
	}

	got := tr.Interaction(s, def, []string{"A", "B"})
	if len(got) != 1 || got[0].To != models.StageHinted {
		t.Fatalf("Expected one hint transition, got %+v", got)
	}
	if s.Stage("R") != models.StageHinted {
		t.Fatalf("Expected hinted, got %v", s.Stage("R"))
	}
	if len(s.DiscoveredRelationships) != 0 {
		t.Fatalf("Expected nothing discovered yet, got %v", s.DiscoveredRelationships)
	}

	if _, err := tr.Disclose(s, def, "R"); err != nil {
		t.Fatalf("Disclose: %v", err)
	}
	if s.Stage("R") != models.StageRevealed {
		t.Fatalf("Expected revealed, got %v", s.Stage("R"))
	}
	if len(s.DiscoveredRelationships) != 1 {
		t.Fatalf("Expected one discovered relationship, got %d", len(s.DiscoveredRelationships))
	}
	d := s.DiscoveredRelationships[0]
	if d.Reason != "They are estranged siblings." || d.Value != 40 {
		t.Errorf("Unexpected discovered entry %+v", d)
	}
}

func TestInteractionNeedsBothEnds(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())

	newTracker().Interaction(s, def, []string{"A", "C"})
	if s.Stage("R") != models.StageHidden || s.Stage("S") != models.StageHidden {
		t.Fatalf("Expected no change, got R=%v S=%v", s.Stage("R"), s.Stage("S"))
	}
}

func TestDiscloseNeverSkipsStage(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())

	tr, err := newTracker().Disclose(s, def, "S")
	if err != nil {
		t.Fatal(err)
	}
	if tr.From != models.StageHidden || tr.To != models.StageHinted {
		t.Fatalf("Expected hidden->hinted, got %v->%v", tr.From, tr.To)
	}
	if len(s.DiscoveredRelationships) != 0 {
		t.Fatal("Expected hinted relationship to stay undiscovered")
	}
}

func TestDiscloseUnknownRelationship(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())

	_, err := newTracker().Disclose(s, def, "nope")
	if !apperrors.IsCode(err, apperrors.InvalidReference) {
		t.Fatalf("Expected InvalidReference, got %v", err)
	}
}

func TestScanTextKeywords(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())
	tr := newTracker()

	// Keyword without both names does nothing.
	tr.ScanText(s, def, "Seoa says her brother used to fix radios.")
	if s.Stage("R") != models.StageHidden {
		t.Fatalf("Expected hidden, got %v", s.Stage("R"))
	}

	// Case-insensitive names and keyword: hint first, even for a reveal keyword.
	tr.ScanText(s, def, "SEOA looks at JIHO. Her BROTHER, she almost says.")
	if s.Stage("R") != models.StageHinted {
		t.Fatalf("Expected hinted, got %v", s.Stage("R"))
	}

	tr.ScanText(s, def, "Seoa finally admits Jiho is her brother.")
	if s.Stage("R") != models.StageRevealed {
		t.Fatalf("Expected revealed, got %v", s.Stage("R"))
	}
}

func TestRevealedNeverDowngrades(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())
	tr := newTracker()
	tr.Disclose(s, def, "R")
	tr.Disclose(s, def, "R")

	events := []func(){
		func() { tr.Interaction(s, def, []string{"A", "B"}) },
		func() { tr.ScanText(s, def, "Seoa and Jiho share a familiar glance; a brother and sister.") },
		func() { tr.Disclose(s, def, "R") },
		func() { tr.ApplyTurn(s, def, models.Delta{Interactions: [][]string{{"A", "B"}}, Disclosures: []string{"R"}}, "Seoa, Jiho") },
	}
	for i, ev := range events {
		ev()
		if s.Stage("R") != models.StageRevealed {
			t.Fatalf("event %d: stage dropped to %v", i, s.Stage("R"))
		}
	}
	if len(s.DiscoveredRelationships) != 1 {
		t.Fatalf("Expected a single discovered entry, got %d", len(s.DiscoveredRelationships))
	}
}

func TestApplyTurnOneStagePerTurn(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())

	got := newTracker().ApplyTurn(s, def, models.Delta{
		Interactions: [][]string{{"A", "B"}},
		Disclosures:  []string{"R", "ghost"},
	}, "Seoa confesses Jiho is her brother.")

	if s.Stage("R") != models.StageHinted {
		t.Fatalf("Expected hinted after one turn, got %v", s.Stage("R"))
	}
	if len(got) != 1 || got[0].Cause != CauseInteraction {
		t.Fatalf("Unexpected transitions %+v", got)
	}
}

func TestViewDoesNotLeakUndisclosed(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())
	tr := newTracker()

	tr.Interaction(s, def, []string{"B", "C"}) // S hinted
	tr.Disclose(s, def, "R")
	tr.Disclose(s, def, "R") // R revealed

	v := View(s, def)
	if !v.UndisclosedTension {
		t.Error("Expected undisclosed tension while S is hinted")
	}
	if len(v.Revealed) != 1 || v.Revealed[0].ID != "R" {
		t.Fatalf("Expected only R revealed, got %+v", v.Revealed)
	}
	if len(v.Noticed) != 1 || v.Noticed[0] != (Pair{PersonA: "B", PersonB: "C"}) {
		t.Fatalf("Expected the hinted pair to be noticed, got %+v", v.Noticed)
	}

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "ration cache") || strings.Contains(string(data), "-15") {
		t.Fatalf("Prompt view leaked hinted relationship: %s", data)
	}

	tr.Disclose(s, def, "S")
	if View(s, def).UndisclosedTension {
		t.Error("Expected no undisclosed tension once everything is revealed")
	}
}

func TestHintedBetween(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())

	if got := HintedBetween(s, def, "C", "B"); len(got) != 0 {
		t.Fatalf("Expected nothing for a hidden relationship, got %v", got)
	}
	newTracker().Interaction(s, def, []string{"B", "C"})
	if got := HintedBetween(s, def, "C", "B"); len(got) != 1 || got[0] != "S" {
		t.Fatalf("Expected S in either order, got %v", got)
	}
	if got := HintedBetween(s, def, "B", "B"); got != nil {
		t.Errorf("Expected nothing for a single role, got %v", got)
	}
	if got := HintedBetween(s, def, "A", "C"); got != nil {
		t.Errorf("Expected nothing for an unrelated pair, got %v", got)
	}
}

func TestLoadKeywords(t *testing.T) {
	kw, err := LoadKeywords("")
	if err != nil || !reflect.DeepEqual(kw, DefaultKeywords()) {
		t.Fatalf("Expected defaults for an empty path, got %+v, %v", kw, err)
	}

	path := filepath.Join(t.TempDir(), "keywords.yaml")
	if err := os.WriteFile(path, []byte("reveal:\n  bond: [cousin]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	kw, err = LoadKeywords(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(kw.Reveal[Bond], []string{"cousin"}) {
		t.Errorf("Expected the file to replace bond reveals, got %v", kw.Reveal[Bond])
	}
	if !reflect.DeepEqual(kw.Reveal[Rift], DefaultKeywords().Reveal[Rift]) {
		t.Errorf("Expected rift reveals to keep their defaults, got %v", kw.Reveal[Rift])
	}

	def := testDefinition()
	s := models.NewSession("s", def, time.Now())
	tr := NewTracker(kw, nil)
	tr.Interaction(s, def, []string{"A", "B"})
	tr.ScanText(s, def, "Seoa admits Jiho is her cousin.")
	if s.Stage("R") != models.StageRevealed {
		t.Errorf("Expected the loaded keyword to reveal, got %v", s.Stage("R"))
	}

	if err := os.WriteFile(path, []byte("hint:\n  rivals: [glare]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKeywords(path); err == nil {
		t.Error("Expected an unknown category to be rejected")
	}
}
