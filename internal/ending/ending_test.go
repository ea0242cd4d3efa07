package ending

import (
	"reflect"
	"testing"
	"time"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/seed"
)

func intPtr(v int) *int { return &v }

func testDefinition() *models.ScenarioDefinition {
	return &models.ScenarioDefinition{
		ScenarioID: "end",
		Characters: []models.Character{{RoleID: "A"}, {RoleID: "B"}},
		ScenarioStats: []models.Stat{
			{ID: "food", Current: 50, Min: 0, Max: 100},
		},
		EndingArchetypes: []models.EndingArchetype{
			{EndingID: "A", Title: "First", SystemConditions: []models.SystemCondition{
				{Type: models.ConditionStatThreshold, StatID: "food", Comparison: ">=", Value: 10},
			}},
			{EndingID: "B", Title: "Second", SystemConditions: []models.SystemCondition{
				{Type: models.ConditionSurvivorCount, Comparison: ">=", Value: 1},
			}},
			{EndingID: "neutral", Title: "Neutral", IsDefault: true},
		},
		EndCondition: models.EndCondition{Type: models.EndTimeLimit, Value: intPtr(3), Unit: "days"},
	}
}

func TestResolvePrefersAuthoredOrder(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())

	for i := 0; i < 10; i++ {
		out, err := Resolve(s, def, nil)
		if err != nil {
			t.Fatal(err)
		}
		if out.EndingID != "A" {
			t.Fatalf("Expected A, got %q", out.EndingID)
		}
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())
	s.Apply(def, "starve", "", models.Delta{StatChanges: map[string]int{"food": -100}, Deaths: []string{"A", "B"}}, time.Now())

	out, err := Resolve(s, def, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.EndingID != "neutral" || !out.IsDefault {
		t.Fatalf("Expected default ending, got %+v", out)
	}
	if out.Stats["food"] != 0 || len(out.Survivors) != 0 {
		t.Errorf("Unexpected snapshot %+v", out)
	}
}

func TestResolveWithoutDefault(t *testing.T) {
	def := testDefinition()
	def.EndingArchetypes = def.EndingArchetypes[:1]
	s := models.NewSession("s", def, time.Now())
	s.Apply(def, "starve", "", models.Delta{StatChanges: map[string]int{"food": -100}}, time.Now())

	_, err := Resolve(s, def, nil)
	if !apperrors.IsCode(err, apperrors.Validation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestResolvePackagesOutcome(t *testing.T) {
	def := testDefinition()
	def.InitialRelationships = []models.Relationship{
		{ID: "R", PersonA: "A", PersonB: "B", Value: 5, Reason: "known"},
		{ID: "H", PersonA: "A", PersonB: "B", Value: -5, Reason: "secret"},
	}
	def.TraitPool.Buffs = []models.Trait{{TraitID: "zeal"}, {TraitID: "calm"}}
	s := models.NewSession("s", def, time.Now())
	s.Relationships["R"] = models.RelationshipState{Stage: models.StageRevealed, Value: 5}
	s.DiscoveredRelationships = []models.DiscoveredRelationship{{ID: "R", Value: 5, Reason: "known"}}
	s.Apply(def, "train", "", models.Delta{TraitsGained: []string{"zeal", "calm"}}, time.Now())

	out, err := Resolve(s, def, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out.Traits, []string{"calm", "zeal"}) {
		t.Errorf("Expected sorted traits, got %v", out.Traits)
	}
	if len(out.Relationships) != 1 || out.Relationships[0].Reason != "known" {
		t.Errorf("Expected only revealed relationship, got %+v", out.Relationships)
	}
	if out.Turn != 1 || out.Day != 1 {
		t.Errorf("Expected turn 1 day 1, got %d/%d", out.Turn, out.Day)
	}

	again, _ := Resolve(s, def, nil)
	if !reflect.DeepEqual(out, again) {
		t.Error("Expected resolve to be deterministic")
	}
}

func TestDue(t *testing.T) {
	def := testDefinition()
	s := models.NewSession("s", def, time.Now())

	if r := Due(s, def, 0, nil); r != NotDue {
		t.Fatalf("Expected not due, got %q", r)
	}
	for i := 0; i < 3; i++ {
		s.Apply(def, "sleep", "", models.Delta{AdvanceDay: true}, time.Now())
	}
	if r := Due(s, def, 0, nil); r != TimeLimit {
		t.Fatalf("Expected time limit after day 3, got %q (day %d)", r, s.Day)
	}

	turns := testDefinition()
	turns.EndCondition = models.EndCondition{Type: models.EndTimeLimit, Value: intPtr(2), Unit: "turns"}
	s2 := models.NewSession("s2", turns, time.Now())
	s2.Apply(turns, "a", "", models.Delta{}, time.Now())
	if r := Due(s2, turns, 0, nil); r != NotDue {
		t.Fatalf("Expected not due after one turn, got %q", r)
	}
	s2.Apply(turns, "b", "", models.Delta{}, time.Now())
	if r := Due(s2, turns, 0, nil); r != TimeLimit {
		t.Fatalf("Expected time limit after two turns, got %q", r)
	}
}

func TestDueGoalAndConditionAndTurns(t *testing.T) {
	goal := testDefinition()
	goal.EndCondition = models.EndCondition{Type: models.EndGoalAchieved}
	s := models.NewSession("s", goal, time.Now())
	s.Apply(goal, "win", "", models.Delta{GoalAchieved: true}, time.Now())
	if r := Due(s, goal, 0, nil); r != GoalAchieved {
		t.Fatalf("Expected goal achieved, got %q", r)
	}

	cond := testDefinition()
	cond.EndCondition = models.EndCondition{Type: models.EndConditionMet, StatID: "food", Comparison: "<=", Value: intPtr(0)}
	s2 := models.NewSession("s2", cond, time.Now())
	if r := Due(s2, cond, 0, nil); r != NotDue {
		t.Fatalf("Expected not due, got %q", r)
	}
	s2.Apply(cond, "spoil", "", models.Delta{StatChanges: map[string]int{"food": -60}}, time.Now())
	if r := Due(s2, cond, 0, nil); r != ConditionMet {
		t.Fatalf("Expected condition met, got %q", r)
	}

	s3 := models.NewSession("s3", goal, time.Now())
	s3.Apply(goal, "a", "", models.Delta{}, time.Now())
	if r := Due(s3, goal, 1, nil); r != TurnsExhausted {
		t.Fatalf("Expected turns exhausted, got %q", r)
	}
}

func TestShelterZeroConvoyEnding(t *testing.T) {
	def, err := seed.Scenario(seed.ShelterZero)
	if err != nil {
		t.Fatal(err)
	}
	s := models.NewSession("s", def, time.Now())
	s.Apply(def, "fix the radio", "", models.Delta{FlagsSet: map[string]bool{"radio_fixed": true}}, time.Now())

	out, err := Resolve(s, def, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.EndingID != "convoy" {
		t.Fatalf("Expected convoy ending, got %q", out.EndingID)
	}
}
