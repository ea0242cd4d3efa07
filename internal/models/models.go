package models

import "time"

// ScenarioDefinition is the authored, read-only content of a scenario.
// Version is assigned by the store on every save; a saved version never
// changes.
type ScenarioDefinition struct {
	ScenarioID           string            `json:"scenarioId" yaml:"scenarioId"`
	Title                string            `json:"title" yaml:"title"`
	Genre                []string          `json:"genre" yaml:"genre"`
	CoreKeywords         []string          `json:"coreKeywords" yaml:"coreKeywords"`
	PosterImageURL       string            `json:"posterImageUrl" yaml:"posterImageUrl"`
	Synopsis             string            `json:"synopsis" yaml:"synopsis"`
	PlayerGoal           string            `json:"playerGoal" yaml:"playerGoal"`
	Status               Status            `json:"status" yaml:"status"`
	Characters           []Character       `json:"characters" yaml:"characters"`
	InitialRelationships []Relationship    `json:"initialRelationships" yaml:"initialRelationships"`
	ScenarioStats        []Stat            `json:"scenarioStats" yaml:"scenarioStats"`
	TraitPool            TraitPool         `json:"traitPool" yaml:"traitPool"`
	CoreDilemmas         []Dilemma         `json:"coreDilemmas" yaml:"coreDilemmas"`
	EndingArchetypes     []EndingArchetype `json:"endingArchetypes" yaml:"endingArchetypes"`
	EndCondition         EndCondition      `json:"endCondition" yaml:"endCondition"`
	Flags                []FlagDefinition  `json:"flags,omitempty" yaml:"flags,omitempty"`
	Version              int               `json:"version,omitempty" yaml:"version,omitempty"`
	UpdatedAt            time.Time         `json:"updatedAt,omitzero" yaml:"updatedAt,omitempty"`
}

type Character struct {
	RoleID             string   `json:"roleId" yaml:"roleId"`
	RoleName           string   `json:"roleName" yaml:"roleName"`
	CharacterName      string   `json:"characterName" yaml:"characterName"`
	Backstory          string   `json:"backstory" yaml:"backstory"`
	ImageURL           string   `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	WeightedTraitTypes []string `json:"weightedTraitTypes,omitempty" yaml:"weightedTraitTypes,omitempty"`
}

// Relationship is a hidden bond or rift between two characters.
type Relationship struct {
	ID      string `json:"id" yaml:"id"`
	PersonA string `json:"personA" yaml:"personA"` // roleId
	PersonB string `json:"personB" yaml:"personB"` // roleId
	Value   int    `json:"value" yaml:"value"`
	Reason  string `json:"reason" yaml:"reason"`
}

// Involves reports whether roleID is one of the two ends of the relationship.
func (r Relationship) Involves(roleID string) bool {
	return r.PersonA == roleID || r.PersonB == roleID
}

type Stat struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Current     int    `json:"current" yaml:"current"` // initial value
	Min         int    `json:"min" yaml:"min"`
	Max         int    `json:"max" yaml:"max"`
}

// Clamp bounds v to the stat's declared range.
func (s Stat) Clamp(v int) int {
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

type TraitPool struct {
	Buffs   []Trait `json:"buffs" yaml:"buffs"`
	Debuffs []Trait `json:"debuffs" yaml:"debuffs"`
}

// All returns buffs followed by debuffs.
func (p TraitPool) All() []Trait {
	all := make([]Trait, 0, len(p.Buffs)+len(p.Debuffs))
	all = append(all, p.Buffs...)
	return append(all, p.Debuffs...)
}

type Trait struct {
	TraitID           string   `json:"traitId" yaml:"traitId"`
	TraitName         string   `json:"traitName" yaml:"traitName"`
	Type              Polarity `json:"type" yaml:"type"`
	WeightType        string   `json:"weightType,omitempty" yaml:"weightType,omitempty"`
	DisplayText       string   `json:"displayText,omitempty" yaml:"displayText,omitempty"`
	SystemInstruction string   `json:"systemInstruction,omitempty" yaml:"systemInstruction,omitempty"`
	IconURL           string   `json:"iconUrl,omitempty" yaml:"iconUrl,omitempty"`
}

type Dilemma struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

type EndingArchetype struct {
	EndingID         string            `json:"endingId" yaml:"endingId"`
	Title            string            `json:"title" yaml:"title"`
	Description      string            `json:"description" yaml:"description"`
	SystemConditions []SystemCondition `json:"systemConditions" yaml:"systemConditions"`
	// IsDefault marks the neutral ending used when nothing else matches.
	IsDefault bool `json:"isDefault,omitempty" yaml:"isDefault,omitempty"`
}

// SystemCondition is a single predicate over session state. Comparison is
// kept as authored and normalized with ParseOperator when evaluated.
type SystemCondition struct {
	Type       ConditionType `json:"type" yaml:"type"`
	StatID     string        `json:"statId,omitempty" yaml:"statId,omitempty"`
	FlagName   string        `json:"flagName,omitempty" yaml:"flagName,omitempty"`
	Comparison string        `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	Value      int           `json:"value" yaml:"value"`
}

// EndCondition decides when a playthrough reaches its terminal checkpoint.
type EndCondition struct {
	Type       EndConditionType `json:"type" yaml:"type"`
	Value      *int             `json:"value,omitempty" yaml:"value,omitempty"`
	Unit       string           `json:"unit,omitempty" yaml:"unit,omitempty"` // "days" or "turns"
	StatID     string           `json:"statId,omitempty" yaml:"statId,omitempty"`
	Comparison string           `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	FlagName   string           `json:"flagName,omitempty" yaml:"flagName,omitempty"`
}

// DefaultGoalFlag is set when the narrative reports the player goal achieved.
const DefaultGoalFlag = "goal_achieved"

// GoalFlag returns the flag watched by a goal-achieved end condition.
func (c EndCondition) GoalFlag() string {
	if c.FlagName != "" {
		return c.FlagName
	}
	return DefaultGoalFlag
}

type FlagDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Initial     bool   `json:"initial,omitempty" yaml:"initial,omitempty"`
}

// ScenarioSummary is the lobby projection of a scenario.
type ScenarioSummary struct {
	ScenarioID     string    `json:"scenarioId" yaml:"scenarioId"`
	Title          string    `json:"title" yaml:"title"`
	Genre          []string  `json:"genre" yaml:"genre"`
	CoreKeywords   []string  `json:"coreKeywords" yaml:"coreKeywords"`
	PosterImageURL string    `json:"posterImageUrl" yaml:"posterImageUrl"`
	Synopsis       string    `json:"synopsis" yaml:"synopsis"`
	Status         Status    `json:"status" yaml:"status"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero" yaml:"updatedAt,omitempty"`
}

func (d *ScenarioDefinition) Summary() ScenarioSummary {
	return ScenarioSummary{
		ScenarioID:     d.ScenarioID,
		Title:          d.Title,
		Genre:          d.Genre,
		CoreKeywords:   d.CoreKeywords,
		PosterImageURL: d.PosterImageURL,
		Synopsis:       d.Synopsis,
		Status:         d.Status,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (d *ScenarioDefinition) Stat(id string) (Stat, bool) {
	for _, s := range d.ScenarioStats {
		if s.ID == id {
			return s, true
		}
	}
	return Stat{}, false
}

func (d *ScenarioDefinition) Character(roleID string) (Character, bool) {
	for _, c := range d.Characters {
		if c.RoleID == roleID {
			return c, true
		}
	}
	return Character{}, false
}

func (d *ScenarioDefinition) Relationship(id string) (Relationship, bool) {
	for _, r := range d.InitialRelationships {
		if r.ID == id {
			return r, true
		}
	}
	return Relationship{}, false
}

func (d *ScenarioDefinition) Trait(id string) (Trait, bool) {
	for _, t := range d.TraitPool.All() {
		if t.TraitID == id {
			return t, true
		}
	}
	return Trait{}, false
}

// DeclaresFlag reports whether name is in the flag dictionary. A scenario
// without a dictionary accepts any flag.
func (d *ScenarioDefinition) DeclaresFlag(name string) bool {
	if len(d.Flags) == 0 {
		return true
	}
	if name == d.EndCondition.GoalFlag() {
		return true
	}
	for _, f := range d.Flags {
		if f.Name == name {
			return true
		}
	}
	return false
}

// DefaultEnding returns the archetype marked IsDefault.
func (d *ScenarioDefinition) DefaultEnding() (EndingArchetype, bool) {
	for _, e := range d.EndingArchetypes {
		if e.IsDefault {
			return e, true
		}
	}
	return EndingArchetype{}, false
}
