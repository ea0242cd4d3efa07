package models

import (
	"errors"
	"fmt"
	"strings"
)

// Status gates where a scenario may be played.
type Status int

const (
	StatusUnset Status = iota
	StatusDraft
	StatusTesting
	StatusActive
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusTesting:
		return "testing"
	case StatusActive:
		return "active"
	default:
		return ""
	}
}

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusTesting || s == StatusActive
}

// Listed reports whether the scenario appears in the public lobby.
func (s Status) Listed() bool {
	return s == StatusActive
}

// Playable reports whether a scenario with this status may be started by id.
func (s Status) Playable() bool {
	switch s {
	case StatusActive, StatusTesting:
		return true
	case StatusDraft, StatusUnset:
		return false
	}
	return false
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "draft", "in_progress", "in-progress":
		*s = StatusDraft
	case "testing":
		*s = StatusTesting
	case "active":
		*s = StatusActive
	case "":
		*s = StatusUnset
	default:
		return fmt.Errorf("unknown scenario status %q", string(text))
	}
	return nil
}

// Stage is the disclosure stage of a relationship. The zero value is Hidden.
type Stage int

const (
	StageHidden Stage = iota
	StageHinted
	StageRevealed
)

func (s Stage) String() string {
	switch s {
	case StageHidden:
		return "hidden"
	case StageHinted:
		return "hinted"
	case StageRevealed:
		return "revealed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Next returns the stage one step forward. Revealed is terminal.
func (s Stage) Next() Stage {
	switch s {
	case StageHidden:
		return StageHinted
	case StageHinted, StageRevealed:
		return StageRevealed
	}
	return s
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "hidden", "":
		*s = StageHidden
	case "hinted":
		*s = StageHinted
	case "revealed":
		*s = StageRevealed
	default:
		return fmt.Errorf("unknown disclosure stage %q", string(text))
	}
	return nil
}

// EndConditionType selects when a playthrough reaches its terminal checkpoint.
type EndConditionType int

const (
	EndUnset EndConditionType = iota
	EndTimeLimit
	EndGoalAchieved
	EndConditionMet
)

func (t EndConditionType) String() string {
	switch t {
	case EndTimeLimit:
		return "time-limit"
	case EndGoalAchieved:
		return "goal-achieved"
	case EndConditionMet:
		return "condition-met"
	default:
		return ""
	}
}

func (t EndConditionType) Valid() bool {
	return t == EndTimeLimit || t == EndGoalAchieved || t == EndConditionMet
}

func (t EndConditionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EndConditionType) UnmarshalText(text []byte) error {
	switch normalizeToken(string(text)) {
	case "time-limit", "timelimit":
		*t = EndTimeLimit
	case "goal-achieved", "goal":
		*t = EndGoalAchieved
	case "condition-met", "condition":
		*t = EndConditionMet
	case "":
		*t = EndUnset
	default:
		return fmt.Errorf("unknown end condition type %q", string(text))
	}
	return nil
}

// ConditionType is the kind of a SystemCondition.
type ConditionType int

const (
	ConditionUnset ConditionType = iota
	ConditionStatThreshold
	ConditionFlagRequired
	ConditionSurvivorCount
)

func (t ConditionType) String() string {
	switch t {
	case ConditionStatThreshold:
		return "stat-threshold"
	case ConditionFlagRequired:
		return "flag-required"
	case ConditionSurvivorCount:
		return "survivor-count"
	default:
		return ""
	}
}

func (t ConditionType) Valid() bool {
	return t == ConditionStatThreshold || t == ConditionFlagRequired || t == ConditionSurvivorCount
}

func (t ConditionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ConditionType) UnmarshalText(text []byte) error {
	switch normalizeToken(string(text)) {
	case "stat-threshold", "stat", "required-stat":
		*t = ConditionStatThreshold
	case "flag-required", "flag", "required-flag":
		*t = ConditionFlagRequired
	case "survivor-count", "survivors":
		*t = ConditionSurvivorCount
	case "":
		*t = ConditionUnset
	default:
		return fmt.Errorf("unknown condition type %q", string(text))
	}
	return nil
}

// Polarity separates buffs from debuffs in the trait pool.
type Polarity int

const (
	PolarityUnset Polarity = iota
	PolarityPositive
	PolarityNegative
)

func (p Polarity) String() string {
	switch p {
	case PolarityPositive:
		return "positive"
	case PolarityNegative:
		return "negative"
	default:
		return ""
	}
}

func (p Polarity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Polarity) UnmarshalText(text []byte) error {
	switch normalizeToken(string(text)) {
	case "positive", "buff":
		*p = PolarityPositive
	case "negative", "debuff":
		*p = PolarityNegative
	case "":
		*p = PolarityUnset
	default:
		return fmt.Errorf("unknown trait polarity %q", string(text))
	}
	return nil
}

// Operator is a normalized comparison operator.
type Operator int

const (
	OpInvalid Operator = iota
	OpGT
	OpGTE
	OpLT
	OpLTE
	OpEQ
	OpNE
)

// ErrUnknownOperator is returned by ParseOperator for tokens outside the
// accepted spellings.
var ErrUnknownOperator = errors.New("unknown comparison operator")

var operatorTokens = map[string]Operator{
	">":                     OpGT,
	"gt":                    OpGT,
	"greater-than":          OpGT,
	"above":                 OpGT,
	">=":                    OpGTE,
	"=>":                    OpGTE,
	"gte":                   OpGTE,
	"ge":                    OpGTE,
	"at-least":              OpGTE,
	"greater-than-or-equal": OpGTE,
	"<":                     OpLT,
	"lt":                    OpLT,
	"less-than":             OpLT,
	"below":                 OpLT,
	"<=":                    OpLTE,
	"=<":                    OpLTE,
	"lte":                   OpLTE,
	"le":                    OpLTE,
	"at-most":               OpLTE,
	"less-than-or-equal":    OpLTE,
	"==":                    OpEQ,
	"=":                     OpEQ,
	"eq":                    OpEQ,
	"equal":                 OpEQ,
	"equals":                OpEQ,
	"!=":                    OpNE,
	"<>":                    OpNE,
	"ne":                    OpNE,
	"neq":                   OpNE,
	"not-equal":             OpNE,
	"not-equals":            OpNE,
}

// ParseOperator normalizes a symbolic or English comparison token.
func ParseOperator(token string) (Operator, error) {
	op, ok := operatorTokens[normalizeToken(token)]
	if !ok {
		return OpInvalid, fmt.Errorf("%w: %q", ErrUnknownOperator, token)
	}
	return op, nil
}

func (o Operator) String() string {
	switch o {
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	default:
		return "?"
	}
}

// Compare applies the operator to left and right. OpInvalid is always false.
func (o Operator) Compare(left, right int) bool {
	switch o {
	case OpGT:
		return left > right
	case OpGTE:
		return left >= right
	case OpLT:
		return left < right
	case OpLTE:
		return left <= right
	case OpEQ:
		return left == right
	case OpNE:
		return left != right
	case OpInvalid:
		return false
	}
	return false
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	return strings.Join(strings.Fields(s), "-")
}
