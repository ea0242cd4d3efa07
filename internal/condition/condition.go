// Package condition evaluates system conditions against a play session.
//
// Evaluation is total: authoring defects (unknown stats, unparseable
// operators) make a condition false rather than aborting the caller.
package condition

import (
	"fmt"
	"log/slog"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
)

// Evaluate reports whether cond holds for session. It returns an
// InvalidReference error when cond names a stat the scenario does not
// declare. An unknown comparison token yields false with no error and a
// warning on the default logger.
func Evaluate(cond models.SystemCondition, session *models.PlaySession, def *models.ScenarioDefinition) (bool, error) {
	return evaluate(cond, session, def, slog.Default())
}

// EvaluateLogged is Evaluate with diagnostics sent to logger.
func EvaluateLogged(cond models.SystemCondition, session *models.PlaySession, def *models.ScenarioDefinition, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return evaluate(cond, session, def, logger)
}

func evaluate(cond models.SystemCondition, session *models.PlaySession, def *models.ScenarioDefinition, logger *slog.Logger) (bool, error) {
	switch cond.Type {
	case models.ConditionStatThreshold:
		if _, ok := def.Stat(cond.StatID); !ok {
			return false, apperrors.New(apperrors.InvalidReference,
				fmt.Sprintf("condition references undeclared stat %q", cond.StatID))
		}
		op, ok := operator(cond.Comparison, logger)
		if !ok {
			return false, nil
		}
		return op.Compare(session.StatValues[cond.StatID], cond.Value), nil

	case models.ConditionFlagRequired:
		return session.Flags[cond.FlagName], nil

	case models.ConditionSurvivorCount:
		op, ok := operator(cond.Comparison, logger)
		if !ok {
			return false, nil
		}
		return op.Compare(len(session.Alive), cond.Value), nil

	case models.ConditionUnset:
		return false, apperrors.New(apperrors.InvalidReference, "condition has no type")
	}
	return false, apperrors.New(apperrors.InvalidReference,
		fmt.Sprintf("unknown condition type %d", int(cond.Type)))
}

func operator(token string, logger *slog.Logger) (models.Operator, bool) {
	op, err := models.ParseOperator(token)
	if err != nil {
		logger.Warn("condition operator not recognized, evaluating to false",
			"comparison", token,
			"error", err)
		return models.OpInvalid, false
	}
	return op, true
}

// Satisfied reports whether every condition of the archetype holds. A
// condition that errors counts as false and is logged.
func Satisfied(arch models.EndingArchetype, session *models.PlaySession, def *models.ScenarioDefinition, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	for i, cond := range arch.SystemConditions {
		ok, err := evaluate(cond, session, def, logger)
		if err != nil {
			logger.Warn("ending condition is invalid, treating as unmet",
				"ending_id", arch.EndingID,
				"condition_index", i,
				"error", err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// FirstMatch scans the non-default archetypes in authored order and returns
// the first whose conditions are all satisfied.
func FirstMatch(def *models.ScenarioDefinition, session *models.PlaySession, logger *slog.Logger) (models.EndingArchetype, bool) {
	for _, arch := range def.EndingArchetypes {
		if arch.IsDefault {
			continue
		}
		if Satisfied(arch, session, def, logger) {
			return arch, true
		}
	}
	return models.EndingArchetype{}, false
}
