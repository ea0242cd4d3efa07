package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/disclosure"
	"github.com/tatianab/atelos/internal/ending"
	"github.com/tatianab/atelos/internal/engine"
	"github.com/tatianab/atelos/internal/export"
	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/storage"
	"github.com/tatianab/atelos/internal/validation"
)

func (s *Server) listScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListActive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": list})
}

// getScenario returns the lobby summary of a playable scenario. The full
// definition stays on the admin route because it contains hidden content.
func (s *Server) getScenario(w http.ResponseWriter, r *http.Request) {
	def, err := storage.LoadPlayable(r.Context(), s.store, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def.Summary())
}

func (s *Server) adminGetScenario(w http.ResponseWriter, r *http.Request) {
	def, err := s.store.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// adminPutScenario saves a definition. Drafts are saved as they are; a
// definition marked testing or active must pass validation first.
func (s *Server) adminPutScenario(w http.ResponseWriter, r *http.Request) {
	var def models.ScenarioDefinition
	if err := decodeJSON(w, r, &def); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if def.ScenarioID == "" {
		def.ScenarioID = id
	}
	if def.ScenarioID != id {
		s.writeError(w, r, apperrors.Invalid("scenarioId does not match the path", []string{validation.FieldScenarioID}))
		return
	}
	if def.Status.Playable() {
		if err := validation.Check(&def); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if err := s.store.Save(r.Context(), &def); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario":   def.Summary(),
		"violations": append(validation.Validate(&def), validation.ValidateReferences(&def)...),
	})
}

// adminValidateScenario validates the body when one is sent, else the saved
// definition.
func (s *Server) adminValidateScenario(w http.ResponseWriter, r *http.Request) {
	var def *models.ScenarioDefinition
	if r.ContentLength != 0 {
		def = &models.ScenarioDefinition{}
		if err := decodeJSON(w, r, def); err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		loaded, err := s.store.Load(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		def = loaded
	}
	fields := validation.Validate(def)
	refs := validation.ValidateReferences(def)
	if refs == nil {
		refs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":      len(fields) == 0 && len(refs) == 0,
		"fields":     fields,
		"references": refs,
	})
}

// sessionView is what a player may see of a session. Relationship values and
// reasons appear only once revealed.
type sessionView struct {
	SessionID  string                          `json:"sessionId"`
	ScenarioID string                          `json:"scenarioId"`
	Prologue   string                          `json:"prologue,omitempty"`
	Turn       int                             `json:"turn"`
	Day        int                             `json:"day"`
	Stats      map[string]int                  `json:"stats"`
	Traits     []string                        `json:"traits"`
	Survivors  []string                        `json:"survivors"`
	Flags      map[string]bool                 `json:"flags"`
	Discovered []models.DiscoveredRelationship `json:"discoveredRelationships"`
	Hints      int                             `json:"hints"`
	History    []models.ActionRecord           `json:"history"`
	Ended      bool                            `json:"ended"`
	Outcome    *models.EndingOutcome           `json:"outcome,omitempty"`
}

func newSessionView(ps *models.PlaySession, def *models.ScenarioDefinition) sessionView {
	hints := 0
	for _, rel := range def.InitialRelationships {
		if ps.Stage(rel.ID) == models.StageHinted {
			hints++
		}
	}
	history := make([]models.ActionRecord, len(ps.ActionHistory))
	for i, rec := range ps.ActionHistory {
		rec.Delta.RelationshipChanges = nil
		rec.Delta.Disclosures = nil
		history[i] = rec
	}
	return sessionView{
		SessionID:  ps.SessionID,
		ScenarioID: ps.ScenarioID,
		Prologue:   ps.Prologue,
		Turn:       ps.Turn,
		Day:        ps.Day,
		Stats:      ps.StatSnapshot(),
		Traits:     ps.Traits,
		Survivors:  ps.Survivors(),
		Flags:      ps.Flags,
		Discovered: disclosure.View(ps, def).Revealed,
		Hints:      hints,
		History:    history,
		Ended:      ps.Ended,
		Outcome:    ps.Outcome,
	}
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	def, err := storage.LoadPlayable(ctx, s.store, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ps, err := s.engine.StartSession(ctx, def)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.engine.Prologue(ctx, ps, def)
	if err := s.store.SaveSession(ctx, ps); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+ps.SessionID)
	writeJSON(w, http.StatusCreated, newSessionView(ps, def))
}

// loadSession returns a session and the scenario snapshot it was started on.
func (s *Server) loadSession(ctx context.Context, id string) (*models.PlaySession, *models.ScenarioDefinition, error) {
	ps, err := s.store.LoadSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	def, err := storage.LoadForSession(ctx, s.store, ps)
	if err != nil {
		return nil, nil, err
	}
	return ps, def, nil
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ps, def, err := s.loadSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(ps, def))
}

type turnRequest struct {
	Decision string `json:"decision"`
}

type confrontRequest struct {
	PersonA string `json:"personA"`
	PersonB string `json:"personB"`
}

type turnResponse struct {
	Turn      models.ActionRecord             `json:"turn"`
	Revealed  []models.DiscoveredRelationship `json:"revealed,omitempty"`
	NewHints  int                             `json:"newHints,omitempty"`
	Degraded  bool                            `json:"degraded,omitempty"`
	EndReason ending.Reason                   `json:"endReason,omitempty"`
	Session   sessionView                     `json:"session"`
}

func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.playTurn(w, r, func(ctx context.Context, ps *models.PlaySession, def *models.ScenarioDefinition) (*engine.TurnResult, error) {
		return s.engine.ProcessTurn(ctx, ps, def, req.Decision)
	})
}

// postConfront plays a turn in which the player forces two characters to
// disclose what is between them.
func (s *Server) postConfront(w http.ResponseWriter, r *http.Request) {
	var req confrontRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.playTurn(w, r, func(ctx context.Context, ps *models.PlaySession, def *models.ScenarioDefinition) (*engine.TurnResult, error) {
		return s.engine.Confront(ctx, ps, def, req.PersonA, req.PersonB)
	})
}

type turnFunc func(ctx context.Context, ps *models.PlaySession, def *models.ScenarioDefinition) (*engine.TurnResult, error)

// playTurn runs play against the session under the in-flight guard and
// saves the result.
func (s *Server) playTurn(w http.ResponseWriter, r *http.Request, play turnFunc) {
	id := r.PathValue("id")
	if !s.acquire(id) {
		s.writeError(w, r, apperrors.New(apperrors.Busy, fmt.Sprintf("a turn for session %q is already in progress", id)))
		return
	}
	defer s.release(id)

	ctx := r.Context()
	ps, def, err := s.loadSession(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := play(ctx, ps, def)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.SaveSession(ctx, ps); err != nil {
		s.writeError(w, r, err)
		return
	}

	view := newSessionView(ps, def)
	resp := turnResponse{
		Turn:      view.History[len(view.History)-1],
		Degraded:  res.Degraded,
		EndReason: res.Reason,
		Session:   view,
	}
	for _, tr := range res.Transitions {
		switch tr.To {
		case models.StageRevealed:
			for _, d := range ps.DiscoveredRelationships {
				if d.ID == tr.RelationshipID {
					resp.Revealed = append(resp.Revealed, d)
				}
			}
		case models.StageHinted:
			resp.NewHints++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) postEnding(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.acquire(id) {
		s.writeError(w, r, apperrors.New(apperrors.Busy, fmt.Sprintf("session %q is busy", id)))
		return
	}
	defer s.release(id)

	ctx := r.Context()
	ps, def, err := s.loadSession(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.Ending(ctx, ps, def)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.SaveSession(ctx, ps); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) exportPDF(w http.ResponseWriter, r *http.Request) {
	ps, def, err := s.loadSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WritePDF(&buf, ps, def); err != nil {
		if errors.Is(err, export.ErrNotEnded) {
			err = apperrors.Wrap(apperrors.Busy, "the session is still in progress", err)
		}
		s.writeError(w, r, err)
		return
	}
	name := strings.ReplaceAll(def.ScenarioID+"-"+ps.SessionID, `"`, "")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, name))
	_, _ = w.Write(buf.Bytes())
}
