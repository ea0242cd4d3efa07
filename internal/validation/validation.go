// Package validation checks scenario definitions before they are published
// or played.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
)

// Field identifiers reported by Validate.
const (
	FieldScenarioID     = "scenarioId"
	FieldTitle          = "title"
	FieldStatus         = "status"
	FieldGenre          = "genre"
	FieldCoreKeywords   = "coreKeywords"
	FieldPosterImageURL = "posterImageUrl"
	FieldSynopsis       = "synopsis"
	FieldPlayerGoal     = "playerGoal"
	FieldDefaultEnding  = "endingArchetypes.default"
)

// publishable is the field-level view of a definition checked by Validate.
type publishable struct {
	ScenarioID     string   `json:"scenarioId" validate:"required"`
	Title          string   `json:"title" validate:"required"`
	Status         string   `json:"status" validate:"required,oneof=draft testing active"`
	Genre          []string `json:"genre" validate:"min=1,dive,required"`
	CoreKeywords   []string `json:"coreKeywords" validate:"min=3,max=5,dive,required"`
	PosterImageURL string   `json:"posterImageUrl" validate:"required"`
	Synopsis       string   `json:"synopsis" validate:"required"`
	PlayerGoal     string   `json:"playerGoal" validate:"required"`
}

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate returns the identifiers of the violated fields, in declaration
// order. An empty result means the definition may be published. It never
// mutates def and never panics; a nil definition violates every field.
func Validate(def *models.ScenarioDefinition) []string {
	view := publishable{}
	if def != nil {
		view = publishable{
			ScenarioID:     strings.TrimSpace(def.ScenarioID),
			Title:          strings.TrimSpace(def.Title),
			Status:         def.Status.String(),
			Genre:          trimAll(def.Genre),
			CoreKeywords:   trimAll(def.CoreKeywords),
			PosterImageURL: strings.TrimSpace(def.PosterImageURL),
			Synopsis:       strings.TrimSpace(def.Synopsis),
			PlayerGoal:     strings.TrimSpace(def.PlayerGoal),
		}
	}

	err := validate.Struct(view)
	if err == nil {
		return []string{}
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{"definition"}
	}
	seen := make(map[string]bool, len(errs))
	out := make([]string, 0, len(errs))
	for _, fe := range errs {
		name, _, _ := strings.Cut(fe.Field(), "[")
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// ValidateReferences checks the internal consistency of a definition: unique
// ids, resolvable roleIds and statIds, initial values within range, parseable
// comparisons, a single default ending and a usable end condition.
func ValidateReferences(def *models.ScenarioDefinition) []string {
	if def == nil {
		return []string{"definition"}
	}
	var out []string
	add := func(format string, args ...any) {
		out = append(out, fmt.Sprintf(format, args...))
	}

	roles := make(map[string]bool, len(def.Characters))
	for i, c := range def.Characters {
		if c.RoleID == "" || roles[c.RoleID] {
			add("characters[%d].roleId", i)
		}
		roles[c.RoleID] = true
	}

	rels := make(map[string]bool, len(def.InitialRelationships))
	for i, r := range def.InitialRelationships {
		if r.ID == "" || rels[r.ID] {
			add("initialRelationships[%d].id", i)
		}
		rels[r.ID] = true
		if !roles[r.PersonA] || r.PersonA == "" {
			add("initialRelationships[%d].personA", i)
		}
		if !roles[r.PersonB] || r.PersonB == "" || r.PersonB == r.PersonA {
			add("initialRelationships[%d].personB", i)
		}
	}

	stats := make(map[string]bool, len(def.ScenarioStats))
	for i, s := range def.ScenarioStats {
		if s.ID == "" || stats[s.ID] {
			add("scenarioStats[%d].id", i)
		}
		stats[s.ID] = true
		if s.Min > s.Max {
			add("scenarioStats[%d].range", i)
		} else if s.Current < s.Min || s.Current > s.Max {
			add("scenarioStats[%d].current", i)
		}
	}

	traits := make(map[string]bool)
	for _, group := range []struct {
		name   string
		traits []models.Trait
	}{
		{"buffs", def.TraitPool.Buffs},
		{"debuffs", def.TraitPool.Debuffs},
	} {
		for i, t := range group.traits {
			if t.TraitID == "" || traits[t.TraitID] {
				add("traitPool.%s[%d].traitId", group.name, i)
			}
			traits[t.TraitID] = true
		}
	}

	dilemmas := make(map[string]bool, len(def.CoreDilemmas))
	for i, d := range def.CoreDilemmas {
		if d.ID == "" || dilemmas[d.ID] {
			add("coreDilemmas[%d].id", i)
		}
		dilemmas[d.ID] = true
	}

	endings := make(map[string]bool, len(def.EndingArchetypes))
	defaults := 0
	for i, e := range def.EndingArchetypes {
		if e.EndingID == "" || endings[e.EndingID] {
			add("endingArchetypes[%d].endingId", i)
		}
		endings[e.EndingID] = true
		if e.IsDefault {
			defaults++
		}
		for j, c := range e.SystemConditions {
			prefix := fmt.Sprintf("endingArchetypes[%d].systemConditions[%d]", i, j)
			switch c.Type {
			case models.ConditionStatThreshold:
				if !stats[c.StatID] {
					add("%s.statId", prefix)
				}
				if _, err := models.ParseOperator(c.Comparison); err != nil {
					add("%s.comparison", prefix)
				}
			case models.ConditionFlagRequired:
				if c.FlagName == "" || !def.DeclaresFlag(c.FlagName) {
					add("%s.flagName", prefix)
				}
			case models.ConditionSurvivorCount:
				if _, err := models.ParseOperator(c.Comparison); err != nil {
					add("%s.comparison", prefix)
				}
			case models.ConditionUnset:
				add("%s.type", prefix)
			}
		}
	}
	if defaults != 1 {
		out = append(out, FieldDefaultEnding)
	}

	ec := def.EndCondition
	switch ec.Type {
	case models.EndTimeLimit:
		if ec.Value == nil || *ec.Value <= 0 {
			out = append(out, "endCondition.value")
		}
		if ec.Unit != "" && ec.Unit != "days" && ec.Unit != "turns" {
			out = append(out, "endCondition.unit")
		}
	case models.EndGoalAchieved:
		if !def.DeclaresFlag(ec.GoalFlag()) {
			out = append(out, "endCondition.flagName")
		}
	case models.EndConditionMet:
		if ec.StatID == "" {
			// Without a stat the session ends once an archetype holds, so an
			// unconditional one would end it on the first turn.
			for i, e := range def.EndingArchetypes {
				if !e.IsDefault && len(e.SystemConditions) == 0 {
					add("endingArchetypes[%d].systemConditions", i)
				}
			}
		} else {
			if !stats[ec.StatID] {
				out = append(out, "endCondition.statId")
			}
			if _, err := models.ParseOperator(ec.Comparison); err != nil {
				out = append(out, "endCondition.comparison")
			}
			if ec.Value == nil {
				out = append(out, "endCondition.value")
			}
		}
	case models.EndUnset:
		out = append(out, "endCondition.type")
	}
	return out
}

// Check runs Validate and ValidateReferences and returns a Validation error
// listing every violation, or nil.
func Check(def *models.ScenarioDefinition) error {
	fields := append(Validate(def), ValidateReferences(def)...)
	if len(fields) == 0 {
		return nil
	}
	id := ""
	if def != nil {
		id = def.ScenarioID
	}
	return apperrors.Invalid(fmt.Sprintf("scenario %q failed validation", id), fields)
}

func trimAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
