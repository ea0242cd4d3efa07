package models

import (
	"fmt"
	"slices"
	"time"
)

// PlaySession is the mutable state of one playthrough. It is owned by a
// single playthrough and must not be advanced by two turns at once.
type PlaySession struct {
	SessionID               string                       `json:"sessionId" yaml:"sessionId"`
	ScenarioID              string                       `json:"scenarioId" yaml:"scenarioId"`
	ScenarioVersion         int                          `json:"scenarioVersion,omitempty" yaml:"scenarioVersion,omitempty"`
	StatValues              map[string]int               `json:"statValues" yaml:"statValues"`
	Relationships           map[string]RelationshipState `json:"relationships" yaml:"relationships"`
	DiscoveredRelationships []DiscoveredRelationship     `json:"discoveredRelationships" yaml:"discoveredRelationships"`
	Traits                  []string                     `json:"traits" yaml:"traits"`
	Alive                   []string                     `json:"alive" yaml:"alive"`
	Flags                   map[string]bool              `json:"flags" yaml:"flags"`
	ActionHistory           []ActionRecord               `json:"actionHistory" yaml:"actionHistory"`
	Summary                 string                       `json:"summary,omitempty" yaml:"summary,omitempty"`
	// SummarizedTurns is the last turn covered by Summary.
	SummarizedTurns int            `json:"summarizedTurns,omitempty" yaml:"summarizedTurns,omitempty"`
	Prologue        string         `json:"prologue,omitempty" yaml:"prologue,omitempty"`
	Turn            int            `json:"turn" yaml:"turn"`
	Day             int            `json:"day" yaml:"day"`
	Ended           bool           `json:"ended" yaml:"ended"`
	Outcome         *EndingOutcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	CreatedAt       time.Time      `json:"createdAt" yaml:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt" yaml:"updatedAt"`
}

// RelationshipState is the per-playthrough view of one relationship.
type RelationshipState struct {
	Stage Stage `json:"stage" yaml:"stage"`
	Value int   `json:"value" yaml:"value"`
}

// DiscoveredRelationship is appended when a relationship is revealed. It is
// the only relationship data handed to narrative prompts.
type DiscoveredRelationship struct {
	ID      string `json:"id" yaml:"id"`
	PersonA string `json:"personA" yaml:"personA"`
	PersonB string `json:"personB" yaml:"personB"`
	Value   int    `json:"value" yaml:"value"`
	Reason  string `json:"reason" yaml:"reason"`
}

// ActionRecord is one applied turn. Records are never changed after append.
type ActionRecord struct {
	Turn      int       `json:"turn" yaml:"turn"`
	Decision  string    `json:"decision" yaml:"decision"`
	Narrative string    `json:"narrative,omitempty" yaml:"narrative,omitempty"`
	Delta     Delta     `json:"delta" yaml:"delta"`
	At        time.Time `json:"at" yaml:"at"`
}

// Delta is a proposed change to session state, typically produced by the
// narrative engine. Proposals are untrusted until Sanitize has run.
type Delta struct {
	StatChanges         map[string]int  `json:"statChanges,omitempty" yaml:"statChanges,omitempty"`
	RelationshipChanges map[string]int  `json:"relationshipChanges,omitempty" yaml:"relationshipChanges,omitempty"`
	FlagsSet            map[string]bool `json:"flagsSet,omitempty" yaml:"flagsSet,omitempty"`
	TraitsGained        []string        `json:"traitsGained,omitempty" yaml:"traitsGained,omitempty"`
	TraitsLost          []string        `json:"traitsLost,omitempty" yaml:"traitsLost,omitempty"`
	Deaths              []string        `json:"deaths,omitempty" yaml:"deaths,omitempty"`
	// Interactions lists groups of roleIds that shared a scene this turn.
	Interactions [][]string `json:"interactions,omitempty" yaml:"interactions,omitempty"`
	// Disclosures lists relationship ids explicitly disclosed this turn.
	Disclosures  []string `json:"disclosures,omitempty" yaml:"disclosures,omitempty"`
	AdvanceDay   bool     `json:"advanceDay,omitempty" yaml:"advanceDay,omitempty"`
	GoalAchieved bool     `json:"goalAchieved,omitempty" yaml:"goalAchieved,omitempty"`
}

// EndingOutcome is the packaged result of ending resolution.
type EndingOutcome struct {
	EndingID      string                   `json:"endingId" yaml:"endingId"`
	Title         string                   `json:"title" yaml:"title"`
	Description   string                   `json:"description" yaml:"description"`
	IsDefault     bool                     `json:"isDefault" yaml:"isDefault"`
	Stats         map[string]int           `json:"stats" yaml:"stats"`
	Relationships []DiscoveredRelationship `json:"relationships" yaml:"relationships"`
	Traits        []string                 `json:"traits" yaml:"traits"`
	Survivors     []string                 `json:"survivors" yaml:"survivors"`
	Turn          int                      `json:"turn" yaml:"turn"`
	Day           int                      `json:"day" yaml:"day"`
	Narrative     string                   `json:"narrative,omitempty" yaml:"narrative,omitempty"`
}

// NewSession seeds a playthrough from the scenario's initial values and pins
// it to def's saved version.
func NewSession(id string, def *ScenarioDefinition, now time.Time) *PlaySession {
	s := &PlaySession{
		SessionID:       id,
		ScenarioID:      def.ScenarioID,
		ScenarioVersion: def.Version,
		StatValues:      make(map[string]int, len(def.ScenarioStats)),
		Relationships:   make(map[string]RelationshipState, len(def.InitialRelationships)),
		Flags:           make(map[string]bool, len(def.Flags)),
		Day:             1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, st := range def.ScenarioStats {
		s.StatValues[st.ID] = st.Clamp(st.Current)
	}
	for _, r := range def.InitialRelationships {
		s.Relationships[r.ID] = RelationshipState{Stage: StageHidden, Value: r.Value}
	}
	for _, c := range def.Characters {
		s.Alive = insertSorted(s.Alive, c.RoleID)
	}
	for _, f := range def.Flags {
		s.Flags[f.Name] = f.Initial
	}
	return s
}

// SetStat stores value for statID clamped to the declared range.
func (s *PlaySession) SetStat(def *ScenarioDefinition, statID string, value int) error {
	st, ok := def.Stat(statID)
	if !ok {
		return fmt.Errorf("unknown stat %q", statID)
	}
	if s.StatValues == nil {
		s.StatValues = make(map[string]int)
	}
	s.StatValues[statID] = st.Clamp(value)
	return nil
}

// AdjustStat adds delta to the current value of statID, clamping the result.
func (s *PlaySession) AdjustStat(def *ScenarioDefinition, statID string, delta int) error {
	st, ok := def.Stat(statID)
	if !ok {
		return fmt.Errorf("unknown stat %q", statID)
	}
	cur, ok := s.StatValues[statID]
	if !ok {
		cur = st.Current
	}
	return s.SetStat(def, statID, cur+delta)
}

func (s *PlaySession) HasTrait(traitID string) bool {
	_, found := slices.BinarySearch(s.Traits, traitID)
	return found
}

func (s *PlaySession) IsAlive(roleID string) bool {
	_, found := slices.BinarySearch(s.Alive, roleID)
	return found
}

func (s *PlaySession) Stage(relID string) Stage {
	return s.Relationships[relID].Stage
}

// Apply folds a sanitized delta into the session and appends the action
// record. It does not advance relationship disclosure.
func (s *PlaySession) Apply(def *ScenarioDefinition, decision, narrative string, d Delta, at time.Time) ActionRecord {
	for _, id := range sortedKeys(d.StatChanges) {
		// Sanitize drops unknown stats; ignore anything left over.
		_ = s.AdjustStat(def, id, d.StatChanges[id])
	}
	for _, id := range sortedKeys(d.RelationshipChanges) {
		rs, ok := s.Relationships[id]
		if !ok {
			continue
		}
		rs.Value += d.RelationshipChanges[id]
		s.Relationships[id] = rs
		for i := range s.DiscoveredRelationships {
			if s.DiscoveredRelationships[i].ID == id {
				s.DiscoveredRelationships[i].Value = rs.Value
			}
		}
	}
	if s.Flags == nil && (len(d.FlagsSet) > 0 || d.GoalAchieved) {
		s.Flags = make(map[string]bool)
	}
	for name, v := range d.FlagsSet {
		s.Flags[name] = v
	}
	if d.GoalAchieved {
		s.Flags[def.EndCondition.GoalFlag()] = true
	}
	for _, t := range d.TraitsGained {
		s.Traits = insertSorted(s.Traits, t)
	}
	for _, t := range d.TraitsLost {
		s.Traits = removeSorted(s.Traits, t)
	}
	for _, r := range d.Deaths {
		s.Alive = removeSorted(s.Alive, r)
	}
	if d.AdvanceDay {
		s.Day++
	}

	s.Turn++
	rec := ActionRecord{
		Turn:      s.Turn,
		Decision:  decision,
		Narrative: narrative,
		Delta:     d,
		At:        at,
	}
	s.ActionHistory = append(s.ActionHistory, rec)
	s.UpdatedAt = at
	return rec
}

// Sanitize returns a copy of d with every reference the scenario does not
// declare removed, and a description of each dropped entry.
func (d Delta) Sanitize(def *ScenarioDefinition, s *PlaySession) (Delta, []string) {
	var out Delta
	var dropped []string

	for id, v := range d.StatChanges {
		if _, ok := def.Stat(id); !ok {
			dropped = append(dropped, "stat:"+id)
			continue
		}
		if out.StatChanges == nil {
			out.StatChanges = make(map[string]int)
		}
		out.StatChanges[id] = v
	}
	for id, v := range d.RelationshipChanges {
		if _, ok := def.Relationship(id); !ok {
			dropped = append(dropped, "relationship:"+id)
			continue
		}
		if out.RelationshipChanges == nil {
			out.RelationshipChanges = make(map[string]int)
		}
		out.RelationshipChanges[id] = v
	}
	for name, v := range d.FlagsSet {
		if name == "" || !def.DeclaresFlag(name) {
			dropped = append(dropped, "flag:"+name)
			continue
		}
		if out.FlagsSet == nil {
			out.FlagsSet = make(map[string]bool)
		}
		out.FlagsSet[name] = v
	}
	for _, t := range d.TraitsGained {
		if _, ok := def.Trait(t); !ok {
			dropped = append(dropped, "trait:"+t)
			continue
		}
		out.TraitsGained = append(out.TraitsGained, t)
	}
	for _, t := range d.TraitsLost {
		if _, ok := def.Trait(t); !ok {
			dropped = append(dropped, "trait:"+t)
			continue
		}
		out.TraitsLost = append(out.TraitsLost, t)
	}
	for _, r := range d.Deaths {
		if _, ok := def.Character(r); !ok || (s != nil && !s.IsAlive(r)) {
			dropped = append(dropped, "death:"+r)
			continue
		}
		out.Deaths = append(out.Deaths, r)
	}
	for _, group := range d.Interactions {
		var kept []string
		for _, r := range group {
			if _, ok := def.Character(r); ok {
				kept = append(kept, r)
			} else {
				dropped = append(dropped, "interaction:"+r)
			}
		}
		if len(kept) >= 2 {
			out.Interactions = append(out.Interactions, kept)
		}
	}
	for _, id := range d.Disclosures {
		if _, ok := def.Relationship(id); !ok {
			dropped = append(dropped, "disclosure:"+id)
			continue
		}
		out.Disclosures = append(out.Disclosures, id)
	}
	out.AdvanceDay = d.AdvanceDay
	out.GoalAchieved = d.GoalAchieved
	slices.Sort(dropped)
	return out, dropped
}

// Survivors returns the roleIds still alive.
func (s *PlaySession) Survivors() []string {
	return slices.Clone(s.Alive)
}

// StatSnapshot returns a copy of the current stat values.
func (s *PlaySession) StatSnapshot() map[string]int {
	out := make(map[string]int, len(s.StatValues))
	for k, v := range s.StatValues {
		out[k] = v
	}
	return out
}

func insertSorted(set []string, v string) []string {
	i, found := slices.BinarySearch(set, v)
	if found {
		return set
	}
	return slices.Insert(set, i, v)
}

func removeSorted(set []string, v string) []string {
	i, found := slices.BinarySearch(set, v)
	if !found {
		return set
	}
	return slices.Delete(set, i, i+1)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
