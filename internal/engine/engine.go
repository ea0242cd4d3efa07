// Package engine runs playthroughs: it asks a Provider for narration,
// applies the proposed changes to the session and checks for an ending.
package engine

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/disclosure"
	"github.com/tatianab/atelos/internal/ending"
	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/validation"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.txt"))

const (
	// summarizeAfter is the number of unsummarized records that triggers a
	// history summary. The newest keepRecent records stay verbatim.
	summarizeAfter = 8
	keepRecent     = 3

	prologueSentences = 6
	endingSentences   = 8
)

type Engine struct {
	provider Provider
	tracker  *disclosure.Tracker
	logger   *slog.Logger
	maxTurns int
	now      func() time.Time
}

// New returns an Engine. maxTurns <= 0 lets the end condition alone decide
// when a playthrough is over.
func New(provider Provider, tracker *disclosure.Tracker, logger *slog.Logger, maxTurns int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")
	if tracker == nil {
		tracker = disclosure.NewTracker(disclosure.DefaultKeywords(), logger)
	}
	return &Engine{
		provider: provider,
		tracker:  tracker,
		logger:   logger,
		maxTurns: maxTurns,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSession seeds a new playthrough of def. The definition must pass
// validation.
func (e *Engine) StartSession(ctx context.Context, def *models.ScenarioDefinition) (*models.PlaySession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validation.Check(def); err != nil {
		return nil, err
	}
	s := models.NewSession(uuid.NewString(), def, e.now())
	e.logger.Info("session started", "session_id", s.SessionID, "scenario_id", def.ScenarioID)
	return s, nil
}

// Prologue narrates the opening scene and stores it on the session. When the
// provider fails the synopsis is used instead.
func (e *Engine) Prologue(ctx context.Context, s *models.PlaySession, def *models.ScenarioDefinition) string {
	if s.Prologue != "" {
		return s.Prologue
	}
	data := struct {
		Title      string
		Synopsis   string
		PlayerGoal string
		Characters []models.Character
		Stats      map[string]int
		Sentences  int
	}{
		Title:      def.Title,
		Synopsis:   def.Synopsis,
		PlayerGoal: def.PlayerGoal,
		Characters: def.Characters,
		Stats:      s.StatSnapshot(),
		Sentences:  prologueSentences,
	}
	text, err := e.generate(ctx, "prologue.txt", data)
	if err != nil {
		e.logger.Warn("prologue generation failed, using synopsis", "session_id", s.SessionID, "error", err)
		text = def.Synopsis
	}
	s.Prologue = text
	return text
}

// TurnResult describes one processed decision.
type TurnResult struct {
	Record      models.ActionRecord     `json:"record"`
	Transitions []disclosure.Transition `json:"transitions,omitempty"`
	// Dropped lists proposed changes that referenced undeclared content.
	Dropped []string `json:"dropped,omitempty"`
	// Degraded is set when the provider failed and the turn was applied
	// without narrated changes.
	Degraded bool                  `json:"degraded,omitempty"`
	Reason   ending.Reason         `json:"endReason,omitempty"`
	Outcome  *models.EndingOutcome `json:"outcome,omitempty"`
}

// turnResponse is the YAML document the turn prompt asks for. The narrator
// never sees relationship ids, so it names disclosures by role pair.
type turnResponse struct {
	Narrative   string       `yaml:"narrative"`
	Delta       models.Delta `yaml:"delta"`
	Disclosures [][]string   `yaml:"disclosures"`
}

// ProcessTurn applies the player's decision to s. The provider's proposal is
// sanitized against def before it touches the session, disclosure stages
// advance, and the end condition is checked. When it is due the outcome is
// resolved and s is marked ended.
func (e *Engine) ProcessTurn(ctx context.Context, s *models.PlaySession, def *models.ScenarioDefinition, decision string) (*TurnResult, error) {
	decision = strings.TrimSpace(decision)
	if decision == "" {
		return nil, apperrors.Invalid("a decision is required", []string{"decision"})
	}
	return e.turn(ctx, s, def, decision, nil)
}

// Confront plays a turn in which the player forces two characters to
// account for what is between them. Relationships between the pair that the
// player has already noticed are revealed; hidden ones stay hidden.
func (e *Engine) Confront(ctx context.Context, s *models.PlaySession, def *models.ScenarioDefinition, roleA, roleB string) (*TurnResult, error) {
	a, okA := def.Character(roleA)
	b, okB := def.Character(roleB)
	switch {
	case !okA || !okB:
		return nil, apperrors.New(apperrors.InvalidReference,
			fmt.Sprintf("unknown character in pair %q, %q", roleA, roleB))
	case roleA == roleB:
		return nil, apperrors.Invalid("a confrontation needs two different characters", []string{"personA", "personB"})
	case !s.IsAlive(roleA) || !s.IsAlive(roleB):
		return nil, apperrors.Invalid("both characters must be alive", []string{"personA", "personB"})
	}
	decision := fmt.Sprintf("Confront %s and %s about what is between them.", a.CharacterName, b.CharacterName)
	return e.turn(ctx, s, def, decision, disclosure.HintedBetween(s, def, roleA, roleB))
}

// checkSession reports whether s can still be played against def.
func checkSession(s *models.PlaySession, def *models.ScenarioDefinition) error {
	if s.ScenarioID != def.ScenarioID {
		return apperrors.New(apperrors.InvalidReference,
			fmt.Sprintf("session %q belongs to scenario %q", s.SessionID, s.ScenarioID))
	}
	if s.ScenarioVersion > 0 && s.ScenarioVersion != def.Version {
		return apperrors.New(apperrors.InvalidReference,
			fmt.Sprintf("session %q plays version %d of scenario %q, not %d",
				s.SessionID, s.ScenarioVersion, s.ScenarioID, def.Version))
	}
	return nil
}

// turn runs one decision. forced lists relationship ids the player's action
// discloses regardless of the narration.
func (e *Engine) turn(ctx context.Context, s *models.PlaySession, def *models.ScenarioDefinition, decision string, forced []string) (*TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Ended {
		return nil, apperrors.New(apperrors.Validation, fmt.Sprintf("session %q has ended", s.SessionID))
	}
	if err := checkSession(s, def); err != nil {
		return nil, err
	}

	if len(e.unsummarized(s)) > summarizeAfter {
		if err := e.SummarizeHistory(ctx, s); err != nil {
			e.logger.Warn("failed to summarize history", "session_id", s.SessionID, "error", err)
		}
	}

	result := &TurnResult{}
	resp, err := e.proposeTurn(ctx, s, def, decision)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("turn generation failed, applying decision without changes",
			"session_id", s.SessionID, "turn", s.Turn+1, "error", err)
		result.Degraded = true
		resp = turnResponse{Narrative: fallbackNarrative(decision)}
	}

	proposal, unmatched := e.resolveDisclosures(s, def, resp)
	proposal.Disclosures = appendUnique(proposal.Disclosures, forced...)
	clean, dropped := proposal.Sanitize(def, s)
	dropped = append(dropped, unmatched...)
	if len(dropped) > 0 {
		e.logger.Info("dropped undeclared references from proposal",
			"session_id", s.SessionID, "dropped", dropped)
	}
	result.Dropped = dropped
	result.Record = s.Apply(def, decision, resp.Narrative, clean, e.now())
	result.Transitions = e.tracker.ApplyTurn(s, def, clean, resp.Narrative)

	result.Reason = ending.Due(s, def, e.maxTurns, e.logger)
	if result.Reason != ending.NotDue {
		out, err := ending.Resolve(s, def, e.logger)
		if err != nil {
			return nil, err
		}
		s.Ended = true
		s.Outcome = &out
		result.Outcome = &out
		e.logger.Info("session reached an ending",
			"session_id", s.SessionID, "reason", result.Reason, "ending_id", out.EndingID)
	}
	return result, nil
}

// resolveDisclosures maps the narrator's disclosed pairs onto hinted
// relationship ids. Ids proposed directly are discarded: the narrator was
// never shown them. Pairs with nothing to reveal are reported as dropped.
func (e *Engine) resolveDisclosures(s *models.PlaySession, def *models.ScenarioDefinition, resp turnResponse) (models.Delta, []string) {
	d := resp.Delta
	d.Disclosures = nil
	var dropped []string
	for _, pair := range resp.Disclosures {
		if len(pair) != 2 {
			dropped = append(dropped, "disclosure:"+strings.Join(pair, "+"))
			continue
		}
		ids := disclosure.HintedBetween(s, def, pair[0], pair[1])
		if len(ids) == 0 {
			dropped = append(dropped, "disclosure:"+pair[0]+"+"+pair[1])
			continue
		}
		d.Disclosures = appendUnique(d.Disclosures, ids...)
	}
	return d, dropped
}

func appendUnique(set []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(set, v) {
			set = append(set, v)
		}
	}
	return set
}

func (e *Engine) proposeTurn(ctx context.Context, s *models.PlaySession, def *models.ScenarioDefinition, decision string) (turnResponse, error) {
	var living []models.Character
	for _, c := range def.Characters {
		if s.IsAlive(c.RoleID) {
			living = append(living, c)
		}
	}
	stats := make([]models.Stat, 0, len(def.ScenarioStats))
	for _, st := range def.ScenarioStats {
		st.Current = s.StatValues[st.ID]
		stats = append(stats, st)
	}
	var traits []models.Trait
	for _, id := range s.Traits {
		if t, ok := def.Trait(id); ok {
			traits = append(traits, t)
		}
	}

	data := struct {
		Title         string
		Synopsis      string
		PlayerGoal    string
		Day, Turn     int
		Characters    []models.Character
		Stats         []models.Stat
		Traits        []models.Trait
		Flags         []models.FlagDefinition
		Dilemmas      []models.Dilemma
		Relationships disclosure.PromptView
		Summary       string
		History       []models.ActionRecord
		Decision      string
	}{
		Title:         def.Title,
		Synopsis:      def.Synopsis,
		PlayerGoal:    def.PlayerGoal,
		Day:           s.Day,
		Turn:          s.Turn + 1,
		Characters:    living,
		Stats:         stats,
		Traits:        traits,
		Flags:         def.Flags,
		Dilemmas:      def.CoreDilemmas,
		Relationships: disclosure.View(s, def),
		Summary:       s.Summary,
		History:       e.unsummarized(s),
		Decision:      decision,
	}

	text, err := e.generate(ctx, "process_turn.txt", data)
	if err != nil {
		return turnResponse{}, err
	}
	var resp turnResponse
	if err := yaml.Unmarshal([]byte(cleanYAML(text)), &resp); err != nil || strings.TrimSpace(resp.Narrative) == "" {
		// Unstructured prose is still narration, but proposes no changes.
		e.logger.Warn("turn response was not valid YAML, keeping prose only",
			"session_id", s.SessionID, "error", err)
		return turnResponse{Narrative: strings.TrimSpace(text)}, nil
	}
	resp.Narrative = strings.TrimSpace(resp.Narrative)
	return resp, nil
}

// Ending returns the session's outcome with an epilogue. A session that has
// not ended yet is resolved now and marked ended, as when the player stops
// early. Provider failures fall back to the archetype description.
func (e *Engine) Ending(ctx context.Context, s *models.PlaySession, def *models.ScenarioDefinition) (models.EndingOutcome, error) {
	if err := ctx.Err(); err != nil {
		return models.EndingOutcome{}, err
	}
	if err := checkSession(s, def); err != nil {
		return models.EndingOutcome{}, err
	}
	if s.Outcome == nil {
		out, err := ending.Resolve(s, def, e.logger)
		if err != nil {
			return models.EndingOutcome{}, err
		}
		s.Outcome = &out
		s.Ended = true
	}
	if s.Outcome.Narrative != "" {
		return *s.Outcome, nil
	}

	survivors := make([]string, 0, len(s.Outcome.Survivors))
	for _, id := range s.Outcome.Survivors {
		if c, ok := def.Character(id); ok {
			survivors = append(survivors, c.CharacterName)
		}
	}
	data := struct {
		Title     string
		Ending    models.EndingOutcome
		Survivors []string
		Summary   string
		Sentences int
	}{
		Title:     def.Title,
		Ending:    *s.Outcome,
		Survivors: survivors,
		Summary:   s.Summary,
		Sentences: endingSentences,
	}
	text, err := e.generate(ctx, "ending.txt", data)
	if err != nil {
		e.logger.Warn("epilogue generation failed, using ending description",
			"session_id", s.SessionID, "error", err)
		text = s.Outcome.Description
	}
	s.Outcome.Narrative = text
	return *s.Outcome, nil
}

// SummarizeHistory folds all but the newest records into s.Summary. The
// action history itself is never shortened.
func (e *Engine) SummarizeHistory(ctx context.Context, s *models.PlaySession) error {
	pending := e.unsummarized(s)
	if len(pending) <= keepRecent {
		return nil
	}
	toSummarize := pending[:len(pending)-keepRecent]

	data := struct {
		CurrentSummary string
		Records        []models.ActionRecord
	}{
		CurrentSummary: s.Summary,
		Records:        toSummarize,
	}
	text, err := e.generate(ctx, "summarize_history.txt", data)
	if err != nil {
		return err
	}
	s.Summary = text
	s.SummarizedTurns = toSummarize[len(toSummarize)-1].Turn
	return nil
}

// unsummarized returns the records newer than the summary.
func (e *Engine) unsummarized(s *models.PlaySession) []models.ActionRecord {
	for i, rec := range s.ActionHistory {
		if rec.Turn > s.SummarizedTurns {
			return s.ActionHistory[i:]
		}
	}
	return nil
}

func (e *Engine) generate(ctx context.Context, name string, data any) (string, error) {
	if e.provider == nil {
		return "", errors.New("no narrative provider configured")
	}
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	text, err := e.provider.Generate(ctx, buf.String())
	if err != nil {
		return "", apperrors.Wrap(apperrors.Provider, "narrative provider failed", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.Wrap(apperrors.Provider, "narrative provider failed", ErrEmptyResponse)
	}
	return text, nil
}

// cleanYAML strips the code fences models like to wrap YAML in.
func cleanYAML(text string) string {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```yaml")
	clean = strings.TrimPrefix(clean, "```yml")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

func fallbackNarrative(decision string) string {
	return fmt.Sprintf("The group carries out the decision: %s. The hours pass without incident.", decision)
}
