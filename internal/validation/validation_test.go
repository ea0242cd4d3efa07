package validation

import (
	"reflect"
	"testing"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/seed"
)

func shelter(t *testing.T) *models.ScenarioDefinition {
	t.Helper()
	def, err := seed.Scenario(seed.ShelterZero)
	if err != nil {
		t.Fatalf("load seed scenario: %v", err)
	}
	return def
}

func TestSeedScenarioIsValid(t *testing.T) {
	def := shelter(t)
	if err := Check(def); err != nil {
		t.Fatalf("Expected seed scenario to validate, got %v", err)
	}
}

func TestTwoCoreKeywordsOnlyViolation(t *testing.T) {
	def := shelter(t)
	def.CoreKeywords = []string{"scarcity", "trust"}

	got := Validate(def)
	if !reflect.DeepEqual(got, []string{FieldCoreKeywords}) {
		t.Fatalf("Expected only %q, got %v", FieldCoreKeywords, got)
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	def := &models.ScenarioDefinition{
		ScenarioID:   "x",
		Title:        "  ",
		Status:       models.StatusDraft,
		CoreKeywords: []string{"a", "b", "c", "d", "e", "f"},
	}
	want := []string{FieldTitle, FieldGenre, FieldCoreKeywords, FieldPosterImageURL, FieldSynopsis, FieldPlayerGoal}

	got := Validate(def)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
}

func TestValidateIsIdempotentAndPure(t *testing.T) {
	def := shelter(t)
	def.Genre = nil
	def.Synopsis = ""
	before := *def
	beforeKeywords := append([]string(nil), def.CoreKeywords...)

	first := Validate(def)
	second := Validate(def)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Expected identical results, got %v and %v", first, second)
	}
	if def.Title != before.Title || !reflect.DeepEqual(def.CoreKeywords, beforeKeywords) {
		t.Fatal("Validate mutated its input")
	}
}

func TestValidateNil(t *testing.T) {
	got := Validate(nil)
	if len(got) != 8 {
		t.Fatalf("Expected every field violated, got %v", got)
	}
	if refs := ValidateReferences(nil); len(refs) != 1 {
		t.Fatalf("Expected one reference violation, got %v", refs)
	}
}

func TestValidateBlankKeyword(t *testing.T) {
	def := shelter(t)
	def.CoreKeywords = []string{"one", " ", "three"}
	got := Validate(def)
	if !reflect.DeepEqual(got, []string{FieldCoreKeywords}) {
		t.Fatalf("Expected coreKeywords violation, got %v", got)
	}
}

func TestValidateReferences(t *testing.T) {
	def := shelter(t)
	def.InitialRelationships[0].PersonB = "ghost"
	def.ScenarioStats[0].Current = 500
	def.EndingArchetypes[0].SystemConditions[0].Comparison = "roughly"
	def.EndingArchetypes[1].SystemConditions[0].StatID = "water"
	def.EndingArchetypes[3].IsDefault = false

	want := []string{
		"initialRelationships[0].personB",
		"scenarioStats[0].current",
		"endingArchetypes[0].systemConditions[0].comparison",
		"endingArchetypes[1].systemConditions[0].statId",
		FieldDefaultEnding,
	}
	got := ValidateReferences(def)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
}

func TestCheckReturnsValidationError(t *testing.T) {
	def := shelter(t)
	def.Genre = []string{}
	def.EndCondition = models.EndCondition{}

	err := Check(def)
	if !apperrors.IsCode(err, apperrors.Validation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	fields := apperrors.FieldsOf(err)
	if !reflect.DeepEqual(fields, []string{FieldGenre, "endCondition.type"}) {
		t.Fatalf("Unexpected fields %v", fields)
	}
}

func TestValidateReferencesTraitAndPairFields(t *testing.T) {
	def := shelter(t)
	def.TraitPool.Debuffs[0].TraitID = def.TraitPool.Buffs[0].TraitID
	def.InitialRelationships[1].PersonB = def.InitialRelationships[1].PersonA

	want := []string{
		"initialRelationships[1].personB",
		"traitPool.debuffs[0].traitId",
	}
	if got := ValidateReferences(def); !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
}

func TestConditionMetNeedsConditionalArchetypes(t *testing.T) {
	def := shelter(t)
	def.EndCondition = models.EndCondition{Type: models.EndConditionMet}
	if got := ValidateReferences(def); len(got) != 0 {
		t.Fatalf("Expected the seed endings to suit a condition-met end, got %v", got)
	}

	def.EndingArchetypes[0].SystemConditions = nil
	want := []string{"endingArchetypes[0].systemConditions"}
	if got := ValidateReferences(def); !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
}
