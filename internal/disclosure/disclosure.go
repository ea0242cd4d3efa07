// Package disclosure advances relationships through the hidden, hinted and
// revealed stages in response to narrative events.
package disclosure

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/models"
)

// Category groups relationships for keyword detection.
type Category string

const (
	Bond Category = "bond" // value >= 0
	Rift Category = "rift" // value < 0
)

// CategoryOf returns the keyword category of a relationship.
func CategoryOf(r models.Relationship) Category {
	if r.Value < 0 {
		return Rift
	}
	return Bond
}

// Keywords are matched case-insensitively as substrings of narrative text.
type Keywords struct {
	Hint   map[Category][]string `yaml:"hint"`
	Reveal map[Category][]string `yaml:"reveal"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		Hint: map[Category][]string{
			Bond: {"familiar", "protective", "old friend", "knowing look", "shared a glance", "익숙한"},
			Rift: {"tension", "glare", "resent", "suspicious", "avoids", "cold silence", "긴장"},
		},
		Reveal: map[Category][]string{
			Bond: {"sibling", "brother", "sister", "family", "confesses", "the truth", "남매", "가족"},
			Rift: {"betrayed", "left behind", "abandoned", "stole", "hiding", "confesses", "the truth", "배신"},
		},
	}
}

// LoadKeywords reads a YAML keyword file of the form
//
//	hint:
//	  bond: [familiar, protective]
//	reveal:
//	  rift: [betrayed]
//
// Each list in the file replaces the default list for that stage and
// category; lists the file omits keep their defaults. An empty path returns
// DefaultKeywords.
func LoadKeywords(path string) (Keywords, error) {
	kw := DefaultKeywords()
	if path == "" {
		return kw, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Keywords{}, fmt.Errorf("read keywords: %w", err)
	}
	var file Keywords
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Keywords{}, fmt.Errorf("parse keywords %s: %w", path, err)
	}
	for _, stage := range []struct {
		name      string
		from, out map[Category][]string
	}{
		{"hint", file.Hint, kw.Hint},
		{"reveal", file.Reveal, kw.Reveal},
	} {
		for cat, words := range stage.from {
			if cat != Bond && cat != Rift {
				return Keywords{}, fmt.Errorf("parse keywords %s: unknown %s category %q", path, stage.name, cat)
			}
			stage.out[cat] = words
		}
	}
	return kw, nil
}

// Cause names the event that drove a transition.
type Cause string

const (
	CauseInteraction Cause = "interaction"
	CauseHintText    Cause = "hint-keyword"
	CauseRevealText  Cause = "reveal-keyword"
	CauseDisclosure  Cause = "disclosure"
)

// Transition records one stage change.
type Transition struct {
	RelationshipID string       `json:"relationshipId" yaml:"relationshipId"`
	From           models.Stage `json:"from" yaml:"from"`
	To             models.Stage `json:"to" yaml:"to"`
	Cause          Cause        `json:"cause" yaml:"cause"`
}

// Tracker applies disclosure events. It holds no per-session state and may be
// shared between sessions.
type Tracker struct {
	keywords Keywords
	logger   *slog.Logger
}

func NewTracker(keywords Keywords, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		keywords: keywords,
		logger:   logger.With("component", "disclosure"),
	}
}

// Interaction hints every hidden relationship whose two ends both appear in
// roleIDs.
func (t *Tracker) Interaction(s *models.PlaySession, def *models.ScenarioDefinition, roleIDs []string) []Transition {
	return t.interaction(s, def, roleIDs, nil)
}

func (t *Tracker) interaction(s *models.PlaySession, def *models.ScenarioDefinition, roleIDs []string, skip map[string]bool) []Transition {
	present := make(map[string]bool, len(roleIDs))
	for _, r := range roleIDs {
		present[r] = true
	}
	var out []Transition
	for _, rel := range def.InitialRelationships {
		if skip[rel.ID] || !present[rel.PersonA] || !present[rel.PersonB] {
			continue
		}
		if s.Stage(rel.ID) != models.StageHidden {
			continue
		}
		out = append(out, t.advance(s, rel, CauseInteraction))
	}
	return out
}

// ScanText looks for relationship keywords in narrative text. A relationship
// is only considered when the text names both of its characters. Each
// relationship moves at most one stage per scan.
func (t *Tracker) ScanText(s *models.PlaySession, def *models.ScenarioDefinition, text string) []Transition {
	return t.scanText(s, def, text, nil)
}

func (t *Tracker) scanText(s *models.PlaySession, def *models.ScenarioDefinition, text string, skip map[string]bool) []Transition {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	m := newMatcher(text)
	var out []Transition
	for _, rel := range def.InitialRelationships {
		if skip[rel.ID] {
			continue
		}
		if !m.mentions(def, rel.PersonA) || !m.mentions(def, rel.PersonB) {
			continue
		}
		cat := CategoryOf(rel)
		switch s.Stage(rel.ID) {
		case models.StageHidden:
			if m.containsAny(t.keywords.Hint[cat]) || m.containsAny(t.keywords.Reveal[cat]) {
				out = append(out, t.advance(s, rel, CauseHintText))
			}
		case models.StageHinted:
			if m.containsAny(t.keywords.Reveal[cat]) {
				out = append(out, t.advance(s, rel, CauseRevealText))
			}
		case models.StageRevealed:
		}
	}
	return out
}

// Disclose moves the relationship one stage forward in response to an
// explicit disclosure event or a player action that forces it. Revealed
// relationships are left alone.
func (t *Tracker) Disclose(s *models.PlaySession, def *models.ScenarioDefinition, relID string) (Transition, error) {
	rel, ok := def.Relationship(relID)
	if !ok {
		err := apperrors.New(apperrors.InvalidReference, fmt.Sprintf("unknown relationship %q", relID))
		t.logger.Warn("disclosure ignored", "relationship_id", relID, "error", err)
		return Transition{}, err
	}
	if s.Stage(relID) == models.StageRevealed {
		return Transition{RelationshipID: relID, From: models.StageRevealed, To: models.StageRevealed, Cause: CauseDisclosure}, nil
	}
	return t.advance(s, rel, CauseDisclosure), nil
}

// ApplyTurn runs every disclosure event of one turn: interactions, explicit
// disclosures, then keyword detection on the narrative. A relationship moves
// at most one stage per turn.
func (t *Tracker) ApplyTurn(s *models.PlaySession, def *models.ScenarioDefinition, d models.Delta, narrative string) []Transition {
	moved := make(map[string]bool)
	var out []Transition
	record := func(ts ...Transition) {
		for _, tr := range ts {
			if tr.From != tr.To {
				moved[tr.RelationshipID] = true
				out = append(out, tr)
			}
		}
	}

	for _, group := range d.Interactions {
		record(t.interaction(s, def, group, moved)...)
	}
	for _, id := range d.Disclosures {
		if moved[id] {
			continue
		}
		tr, err := t.Disclose(s, def, id)
		if err != nil {
			continue
		}
		record(tr)
	}
	record(t.scanText(s, def, narrative, moved)...)
	return out
}

func (t *Tracker) advance(s *models.PlaySession, rel models.Relationship, cause Cause) Transition {
	if s.Relationships == nil {
		s.Relationships = make(map[string]models.RelationshipState)
	}
	st, ok := s.Relationships[rel.ID]
	if !ok {
		st = models.RelationshipState{Stage: models.StageHidden, Value: rel.Value}
	}
	from := st.Stage
	st.Stage = from.Next()
	s.Relationships[rel.ID] = st

	if from != models.StageRevealed && st.Stage == models.StageRevealed {
		s.DiscoveredRelationships = append(s.DiscoveredRelationships, models.DiscoveredRelationship{
			ID:      rel.ID,
			PersonA: rel.PersonA,
			PersonB: rel.PersonB,
			Value:   st.Value,
			Reason:  rel.Reason,
		})
	}
	t.logger.Debug("relationship stage advanced",
		"session_id", s.SessionID,
		"relationship_id", rel.ID,
		"from", from.String(),
		"to", st.Stage.String(),
		"cause", string(cause))
	return Transition{RelationshipID: rel.ID, From: from, To: st.Stage, Cause: cause}
}

// matcher holds case-folded narrative text. cases.Caser is stateful, so each
// matcher gets its own.
type matcher struct {
	fold   cases.Caser
	folded string
}

func newMatcher(text string) *matcher {
	fold := cases.Fold()
	return &matcher{fold: fold, folded: fold.String(text)}
}

func (m *matcher) contains(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	return strings.Contains(m.folded, m.fold.String(s))
}

func (m *matcher) mentions(def *models.ScenarioDefinition, roleID string) bool {
	c, ok := def.Character(roleID)
	if !ok {
		return false
	}
	return m.contains(c.CharacterName) || m.contains(c.RoleName)
}

func (m *matcher) containsAny(keywords []string) bool {
	for _, kw := range keywords {
		if m.contains(kw) {
			return true
		}
	}
	return false
}

// Pair names the two characters of a relationship and nothing else.
type Pair struct {
	PersonA string `json:"personA" yaml:"personA"`
	PersonB string `json:"personB" yaml:"personB"`
}

// PromptView is the relationship projection handed to narrative prompts.
// Hinted relationships contribute only their pair, hidden ones only the
// tension flag.
type PromptView struct {
	Revealed           []models.DiscoveredRelationship `json:"revealed" yaml:"revealed"`
	Noticed            []Pair                          `json:"noticed,omitempty" yaml:"noticed,omitempty"`
	UndisclosedTension bool                            `json:"undisclosedTension" yaml:"undisclosedTension"`
}

func View(s *models.PlaySession, def *models.ScenarioDefinition) PromptView {
	var v PromptView
	for _, d := range s.DiscoveredRelationships {
		if s.Stage(d.ID) == models.StageRevealed {
			v.Revealed = append(v.Revealed, d)
		}
	}
	for _, rel := range def.InitialRelationships {
		switch s.Stage(rel.ID) {
		case models.StageHinted:
			v.Noticed = append(v.Noticed, Pair{PersonA: rel.PersonA, PersonB: rel.PersonB})
			v.UndisclosedTension = true
		case models.StageHidden:
			v.UndisclosedTension = true
		}
	}
	return v
}

// HintedBetween returns the ids of hinted relationships between the two
// roles, in either order. These are the relationships an explicit disclosure
// between the pair can reveal.
func HintedBetween(s *models.PlaySession, def *models.ScenarioDefinition, a, b string) []string {
	if a == "" || b == "" || a == b {
		return nil
	}
	var ids []string
	for _, rel := range def.InitialRelationships {
		if !rel.Involves(a) || !rel.Involves(b) {
			continue
		}
		if s.Stage(rel.ID) == models.StageHinted {
			ids = append(ids, rel.ID)
		}
	}
	return ids
}
