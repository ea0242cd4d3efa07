// Package export renders a finished playthrough as a printable document.
package export

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/jung-kurt/gofpdf"

	"github.com/tatianab/atelos/internal/models"
)

// ErrNotEnded is returned when the session has no outcome to export.
var ErrNotEnded = errors.New("session has not reached an ending")

// WritePDF writes an A4 story booklet for s to w: the ending, the final
// state and every decision with its narration.
func WritePDF(w io.Writer, s *models.PlaySession, def *models.ScenarioDefinition) error {
	if s.Outcome == nil {
		return ErrNotEnded
	}
	out := s.Outcome

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(def.Title, true)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.MultiCell(0, 10, tr(def.Title), "", "L", false)
	pdf.SetFont("Helvetica", "I", 11)
	pdf.MultiCell(0, 6, tr(def.Synopsis), "", "L", false)
	pdf.Ln(4)

	heading := func(text string) {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.MultiCell(0, 8, tr(text), "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
	}
	para := func(text string) {
		pdf.MultiCell(0, 6, tr(text), "", "L", false)
	}

	if s.Prologue != "" {
		heading("Prologue")
		para(s.Prologue)
	}

	heading("Decisions")
	for _, rec := range s.ActionHistory {
		pdf.SetFont("Helvetica", "B", 11)
		para(fmt.Sprintf("Turn %d: %s", rec.Turn, rec.Decision))
		pdf.SetFont("Helvetica", "", 11)
		if rec.Narrative != "" {
			para(rec.Narrative)
		}
		pdf.Ln(1)
	}

	heading("Ending: " + out.Title)
	para(out.Description)
	if out.Narrative != "" && out.Narrative != out.Description {
		pdf.Ln(2)
		para(out.Narrative)
	}

	heading("Final state")
	para(fmt.Sprintf("Turns played: %d. Days survived: %d.", out.Turn, out.Day))
	ids := make([]string, 0, len(out.Stats))
	for id := range out.Stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		name := id
		if st, ok := def.Stat(id); ok && st.Name != "" {
			name = st.Name
		}
		para(fmt.Sprintf("%s: %d", name, out.Stats[id]))
	}
	survivors := "none"
	if len(out.Survivors) > 0 {
		survivors = ""
		for i, id := range out.Survivors {
			if i > 0 {
				survivors += ", "
			}
			if c, ok := def.Character(id); ok {
				survivors += c.CharacterName
			} else {
				survivors += id
			}
		}
	}
	para("Survivors: " + survivors)
	if len(out.Relationships) > 0 {
		heading("What you uncovered")
		for _, r := range out.Relationships {
			para(r.Reason)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}
