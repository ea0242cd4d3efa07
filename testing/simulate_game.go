package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tatianab/atelos/internal/app"
	"github.com/tatianab/atelos/internal/config"
	"github.com/tatianab/atelos/internal/disclosure"
	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/seed"
)

func main() {
	scenarioID := flag.String("scenario", seed.ShelterZero, "built-in scenario to play")
	maxTurns := flag.Int("turns", 15, "stop after this many decisions")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, logCloser, err := cfg.NewLogger(log.Writer())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logCloser.Close()

	// The narrator
	eng, closer, err := app.NewEngine(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer closer.Close()

	// The player
	playerClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create player client: %v", err)
	}
	defer playerClient.Close()
	playerModel := playerClient.GenerativeModel(cfg.Model)

	def, err := seed.Scenario(*scenarioID)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}
	session, err := eng.StartSession(ctx, def)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	fmt.Printf("--- %s ---\n%s\n\n", def.Title, eng.Prologue(ctx, session, def))

	for i := 0; i < *maxTurns && session.Outcome == nil; i++ {
		decision := getPlayerDecision(ctx, playerModel, session, def)
		fmt.Printf("--- Turn %d, Day %d ---\n", session.Turn+1, session.Day)
		fmt.Printf("Player: %s\n", decision)

		res, err := eng.ProcessTurn(ctx, session, def, decision)
		if err != nil {
			fmt.Printf("Error processing turn: %v\n", err)
			break
		}
		fmt.Printf("Narrator: %s\n", res.Record.Narrative)
		if res.Degraded {
			fmt.Println("(narration unavailable, turn applied without changes)")
		}
		for _, id := range res.Dropped {
			fmt.Printf("Dropped: %s\n", id)
		}
		for _, tr := range res.Transitions {
			fmt.Printf("Disclosure: %s -> %s\n", tr.RelationshipID, tr.To)
		}
		fmt.Printf("Stats: %s\n\n", formatStats(session.StatSnapshot()))
	}

	out, err := eng.Ending(ctx, session, def)
	if err != nil {
		log.Fatalf("Failed to resolve ending: %v", err)
	}
	fmt.Printf("=== %s ===\n%s\n", out.Title, out.Narrative)
	fmt.Printf("Survivors: %s\n", strings.Join(out.Survivors, ", "))
}

func getPlayerDecision(ctx context.Context, model *genai.GenerativeModel, s *models.PlaySession, def *models.ScenarioDefinition) string {
	var history strings.Builder
	for _, rec := range s.ActionHistory {
		fmt.Fprintf(&history, "Decision: %s\nOutcome: %s\n", rec.Decision, rec.Narrative)
	}
	var known []string
	for _, rel := range disclosure.View(s, def).Revealed {
		known = append(known, fmt.Sprintf("%s and %s: %s", rel.PersonA, rel.PersonB, rel.Reason))
	}

	prompt := fmt.Sprintf(`You are playing a survival story where you lead a small group.
Situation: %s
Your goal: %s
Day: %d
Stats: %s
Survivors: %s
What you know about the group: %s

History:
%s

What do you decide next? Be concrete and stay within the story. Return ONLY the decision, no extra commentary.`,
		def.Synopsis,
		def.PlayerGoal,
		s.Day,
		formatStats(s.StatSnapshot()),
		strings.Join(s.Survivors(), ", "),
		strings.Join(known, "; "),
		history.String(),
	)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "ration the supplies and wait"
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "check on everyone"
	}
	return strings.TrimSpace(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]))
}

func formatStats(stats map[string]int) string {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s=%d", id, stats[id])
	}
	return strings.Join(parts, ", ")
}
