// Package ending decides when a playthrough is over and which ending
// archetype it reached.
package ending

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/condition"
	"github.com/tatianab/atelos/internal/models"
)

// Reason explains why a session reached its terminal checkpoint.
type Reason string

const (
	NotDue         Reason = ""
	TimeLimit      Reason = "time-limit"
	GoalAchieved   Reason = "goal-achieved"
	ConditionMet   Reason = "condition-met"
	TurnsExhausted Reason = "turns-exhausted"
)

// Due reports whether the end condition is satisfied or no player turns
// remain. maxTurns <= 0 means unlimited.
func Due(s *models.PlaySession, def *models.ScenarioDefinition, maxTurns int, logger *slog.Logger) Reason {
	if logger == nil {
		logger = slog.Default()
	}
	ec := def.EndCondition
	switch ec.Type {
	case models.EndTimeLimit:
		if ec.Value != nil {
			if ec.Unit == "turns" {
				if s.Turn >= *ec.Value {
					return TimeLimit
				}
			} else if s.Day > *ec.Value {
				return TimeLimit
			}
		}
	case models.EndGoalAchieved:
		if s.Flags[ec.GoalFlag()] {
			return GoalAchieved
		}
	case models.EndConditionMet:
		if conditionMet(s, def, logger) {
			return ConditionMet
		}
	case models.EndUnset:
	}
	if maxTurns > 0 && s.Turn >= maxTurns {
		return TurnsExhausted
	}
	return NotDue
}

// conditionMet checks the end condition's stat comparison when it names a
// stat, and otherwise whether any non-default archetype already holds.
func conditionMet(s *models.PlaySession, def *models.ScenarioDefinition, logger *slog.Logger) bool {
	ec := def.EndCondition
	if ec.StatID != "" && ec.Value != nil {
		ok, err := condition.EvaluateLogged(models.SystemCondition{
			Type:       models.ConditionStatThreshold,
			StatID:     ec.StatID,
			Comparison: ec.Comparison,
			Value:      *ec.Value,
		}, s, def, logger)
		if err != nil {
			logger.Warn("end condition is invalid, treating as unmet", "error", err)
			return false
		}
		return ok
	}
	_, ok := condition.FirstMatch(def, s, logger)
	return ok
}

// Resolve selects the ending for the session: the first non-default archetype
// in authored order whose conditions all hold, else the default archetype.
// It is deterministic and performs no I/O.
func Resolve(s *models.PlaySession, def *models.ScenarioDefinition, logger *slog.Logger) (models.EndingOutcome, error) {
	arch, ok := condition.FirstMatch(def, s, logger)
	if !ok {
		arch, ok = def.DefaultEnding()
		if !ok {
			return models.EndingOutcome{}, apperrors.Invalid(
				fmt.Sprintf("scenario %q has no default ending", def.ScenarioID),
				[]string{"endingArchetypes.default"})
		}
	}

	traits := slices.Clone(s.Traits)
	slices.Sort(traits)
	var revealed []models.DiscoveredRelationship
	for _, d := range s.DiscoveredRelationships {
		if s.Stage(d.ID) == models.StageRevealed {
			revealed = append(revealed, d)
		}
	}

	return models.EndingOutcome{
		EndingID:      arch.EndingID,
		Title:         arch.Title,
		Description:   arch.Description,
		IsDefault:     arch.IsDefault,
		Stats:         s.StatSnapshot(),
		Relationships: revealed,
		Traits:        traits,
		Survivors:     s.Survivors(),
		Turn:          s.Turn,
		Day:           s.Day,
	}, nil
}
