package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/atelos/internal/disclosure"
	"github.com/tatianab/atelos/internal/engine"
	"github.com/tatianab/atelos/internal/models"
	"github.com/tatianab/atelos/internal/storage"
)

type sessionState int

const (
	stateLobby sessionState = iota
	stateLoading
	statePlaying
	stateEnded
	stateError
)

type model struct {
	state     sessionState
	engine    *engine.Engine
	store     storage.Store
	logger    *slog.Logger
	scenarios []models.ScenarioSummary
	def       *models.ScenarioDefinition
	session   *models.PlaySession
	textInput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	err       error
	gameLog   string
	notice    string
	width     int
	height    int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	revealStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD75F")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

func NewModel(eng *engine.Engine, store storage.Store, logger *slog.Logger) model {
	if logger == nil {
		logger = slog.Default()
	}
	ti := textinput.New()
	ti.Placeholder = "Pick a scenario number, or /resume <session id>"
	ti.Focus()
	ti.CharLimit = 280
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		state:     stateLoading,
		engine:    eng,
		store:     store,
		logger:    logger.With("component", "tui"),
		textInput: ti,
		spinner:   sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.loadScenarios())
}

type scenariosLoadedMsg struct {
	scenarios []models.ScenarioSummary
}

type sessionReadyMsg struct {
	def     *models.ScenarioDefinition
	session *models.PlaySession
	resumed bool
}

type turnProcessedMsg struct {
	result *engine.TurnResult
	err    error
}

type endingMsg struct {
	outcome models.EndingOutcome
	err     error
}

type errMsg struct {
	err error
}

func (m model) logWidth() int {
	return int(float64(m.width) * 0.72)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			input := strings.TrimSpace(m.textInput.Value())
			m.textInput.Reset()
			switch m.state {
			case stateLobby:
				return m.chooseScenario(input)
			case statePlaying:
				return m.submit(input)
			case stateEnded:
				return m.backToLobby()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = msg.Height - 6
		if m.state == statePlaying || m.state == stateEnded {
			m.viewport.SetContent(m.gameLog)
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case scenariosLoadedMsg:
		m.scenarios = msg.scenarios
		m.state = stateLobby
		return m, nil

	case sessionReadyMsg:
		m.def = msg.def
		m.session = msg.session
		m.state = statePlaying
		header := gameStyle.Bold(true).Render(m.def.Title)
		goal := helpStyle.Render("Goal: " + m.def.PlayerGoal)
		m.gameLog = header + "\n" + goal + "\n\n" + gameStyle.Width(m.logWidth()).Render(m.session.Prologue) + "\n\n"
		if msg.resumed {
			for _, rec := range m.session.ActionHistory {
				m.appendDecision(rec.Decision)
				m.gameLog += gameStyle.Width(m.logWidth()).Render(rec.Narrative) + "\n\n"
			}
		}
		if m.viewport.Width == 0 {
			m.viewport = viewport.New(m.logWidth(), m.height-6)
		}
		m.viewport.SetContent(m.gameLog)
		m.viewport.GotoBottom()
		m.textInput.Placeholder = "What does the group do?"
		m.notice = "Session " + m.session.SessionID
		if m.session.Ended {
			m.state = stateEnded
		}
		return m, nil

	case turnProcessedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.state = statePlaying
		res := msg.result
		m.gameLog += gameStyle.Width(m.logWidth()).Render(res.Record.Narrative) + "\n\n"
		for _, tr := range res.Transitions {
			switch tr.To {
			case models.StageHinted:
				m.gameLog += revealStyle.Render("Something unspoken passes between them.") + "\n\n"
			case models.StageRevealed:
				if rel, ok := m.def.Relationship(tr.RelationshipID); ok {
					m.gameLog += revealStyle.Width(m.logWidth()).Render("You understand now: "+rel.Reason) + "\n\n"
				}
			}
		}
		m.notice = ""
		if res.Degraded {
			m.notice = "The narrator faltered; your decision was recorded without consequences."
		}
		m.viewport.SetContent(m.gameLog)
		m.viewport.GotoBottom()
		if res.Outcome != nil {
			m.state = stateLoading
			return m, tea.Batch(m.requestEnding(), m.spinner.Tick)
		}
		return m, nil

	case endingMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.state = stateEnded
		m.gameLog += titleStyle.Render("ENDING: "+msg.outcome.Title) + "\n\n" +
			gameStyle.Width(m.logWidth()).Render(msg.outcome.Narrative) + "\n\n"
		m.viewport.SetContent(m.gameLog)
		m.viewport.GotoBottom()
		m.textInput.Placeholder = "Press Enter to return to the lobby"
		return m, nil

	case errMsg:
		m.err = msg.err
		m.state = stateError
		return m, nil
	}

	if m.state == stateLobby || m.state == statePlaying || m.state == stateEnded {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) chooseScenario(input string) (tea.Model, tea.Cmd) {
	if id, ok := strings.CutPrefix(input, "/resume "); ok {
		m.state = stateLoading
		return m, tea.Batch(m.resumeSession(strings.TrimSpace(id)), m.spinner.Tick)
	}
	if input == "/quit" {
		return m, tea.Quit
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(m.scenarios) {
		m.notice = "Choose a number from the list."
		return m, nil
	}
	m.notice = ""
	m.state = stateLoading
	return m, tea.Batch(m.startSession(m.scenarios[n-1].ScenarioID), m.spinner.Tick)
}

func (m model) submit(input string) (tea.Model, tea.Cmd) {
	if args, ok := strings.CutPrefix(input, "/confront"); ok {
		return m.confront(strings.Fields(args))
	}
	switch input {
	case "":
		return m, nil
	case "/quit":
		return m, tea.Quit
	case "/restart":
		return m.backToLobby()
	case "/end":
		m.state = stateLoading
		return m, tea.Batch(m.requestEnding(), m.spinner.Tick)
	}
	m.appendDecision(input)
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
	m.state = stateLoading
	return m, tea.Batch(m.processTurn(input), m.spinner.Tick)
}

// confront forces the two named characters to account for what is between
// them. Characters are named by role id or role name.
func (m model) confront(names []string) (tea.Model, tea.Cmd) {
	if len(names) != 2 {
		m.notice = "Usage: /confront <role> <role>"
		return m, nil
	}
	a, okA := findRole(m.def, names[0])
	b, okB := findRole(m.def, names[1])
	if !okA || !okB || a.RoleID == b.RoleID {
		m.notice = "Name two different characters by role, e.g. /confront medic engineer."
		return m, nil
	}
	if !m.session.IsAlive(a.RoleID) || !m.session.IsAlive(b.RoleID) {
		m.notice = "Only the living can be confronted."
		return m, nil
	}
	m.notice = ""
	m.appendDecision(fmt.Sprintf("Confront %s and %s", a.CharacterName, b.CharacterName))
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
	m.state = stateLoading
	return m, tea.Batch(m.confrontTurn(a.RoleID, b.RoleID), m.spinner.Tick)
}

func findRole(def *models.ScenarioDefinition, name string) (models.Character, bool) {
	for _, c := range def.Characters {
		if c.RoleID == name || strings.EqualFold(c.RoleName, name) {
			return c, true
		}
	}
	return models.Character{}, false
}

func (m *model) appendDecision(decision string) {
	m.gameLog += userStyle.Width(m.logWidth()).Render("> "+decision) + "\n\n"
}

func (m model) backToLobby() (tea.Model, tea.Cmd) {
	m.state = stateLoading
	m.session = nil
	m.def = nil
	m.gameLog = ""
	m.notice = ""
	m.textInput.Placeholder = "Pick a scenario number, or /resume <session id>"
	return m, m.loadScenarios()
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateLobby:
		var b strings.Builder
		b.WriteString(titleStyle.Render("ATELOS") + "\n\nChoose a scenario:\n\n")
		if len(m.scenarios) == 0 {
			b.WriteString("  (no scenarios are published)\n")
		}
		for i, sc := range m.scenarios {
			fmt.Fprintf(&b, "  %d. %s  %s\n", i+1, sc.Title, helpStyle.Render(strings.Join(sc.Genre, ", ")))
			fmt.Fprintf(&b, "     %s\n", sc.Synopsis)
		}
		s = b.String() + "\n" + m.textInput.View()
		if m.notice != "" {
			s += "\n\n" + helpStyle.Render(m.notice)
		}

	case stateLoading:
		s = fmt.Sprintf("\n  %s The story unfolds... please wait.\n", m.spinner.View())
		// The session is being mutated by a command; show only the log.
		if m.session != nil {
			s = m.viewport.View() + "\n" + s
		}

	case statePlaying, stateEnded:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderState(),
		)
		help := "Commands: /confront <role> <role>, /end, /restart, /quit, or type what the group does."
		if m.state == stateEnded {
			help = "The story is over."
		}
		if m.notice != "" {
			help += "  " + m.notice
		}
		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			"\n"+m.textInput.View(),
			"\n"+helpStyle.Render(help),
		)

	case stateError:
		s = fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.", m.err)
	}

	return "\n" + s + "\n"
}

func (m model) renderState() string {
	if m.session == nil || m.def == nil {
		return ""
	}
	ps, def := m.session, m.def

	var b strings.Builder
	b.WriteString(titleStyle.Render("DAY") + "\n")
	fmt.Fprintf(&b, "Day %d, turn %d\n\n", ps.Day, ps.Turn)

	b.WriteString(titleStyle.Render("RESOURCES") + "\n")
	for _, st := range def.ScenarioStats {
		fmt.Fprintf(&b, "%s: %d/%d\n", st.Name, ps.StatValues[st.ID], st.Max)
	}
	b.WriteString("\n")

	b.WriteString(titleStyle.Render("GROUP") + "\n")
	for _, c := range def.Characters {
		mark := ""
		if !ps.IsAlive(c.RoleID) {
			mark = " (lost)"
		}
		fmt.Fprintf(&b, "%s, %s%s\n", c.CharacterName, c.RoleName, mark)
	}
	b.WriteString("\n")

	if len(ps.Traits) > 0 {
		b.WriteString(titleStyle.Render("TRAITS") + "\n")
		for _, id := range ps.Traits {
			if t, ok := def.Trait(id); ok {
				b.WriteString("- " + t.TraitName + "\n")
			}
		}
		b.WriteString("\n")
	}

	view := disclosure.View(ps, def)
	if len(view.Revealed) > 0 {
		b.WriteString(titleStyle.Render("BONDS") + "\n")
		for _, d := range view.Revealed {
			a, _ := def.Character(d.PersonA)
			c, _ := def.Character(d.PersonB)
			fmt.Fprintf(&b, "%s / %s: %+d\n", a.CharacterName, c.CharacterName, d.Value)
		}
	}

	stateWidth := int(float64(m.width) * 0.25)
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(b.String())
}

func (m model) loadScenarios() tea.Cmd {
	return func() tea.Msg {
		list, err := m.store.ListActive(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return scenariosLoadedMsg{list}
	}
}

func (m model) startSession(scenarioID string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		def, err := storage.LoadPlayable(ctx, m.store, scenarioID)
		if err != nil {
			return errMsg{err}
		}
		session, err := m.engine.StartSession(ctx, def)
		if err != nil {
			return errMsg{err}
		}
		m.engine.Prologue(ctx, session, def)
		m.save(ctx, session)
		return sessionReadyMsg{def: def, session: session}
	}
}

func (m model) resumeSession(sessionID string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		session, err := m.store.LoadSession(ctx, sessionID)
		if err != nil {
			return errMsg{err}
		}
		def, err := storage.LoadForSession(ctx, m.store, session)
		if err != nil {
			return errMsg{err}
		}
		return sessionReadyMsg{def: def, session: session, resumed: true}
	}
}

func (m model) processTurn(decision string) tea.Cmd {
	session, def := m.session, m.def
	return func() tea.Msg {
		ctx := context.Background()
		res, err := m.engine.ProcessTurn(ctx, session, def, decision)
		if err == nil {
			m.save(ctx, session)
		}
		return turnProcessedMsg{res, err}
	}
}

func (m model) confrontTurn(roleA, roleB string) tea.Cmd {
	session, def := m.session, m.def
	return func() tea.Msg {
		ctx := context.Background()
		res, err := m.engine.Confront(ctx, session, def, roleA, roleB)
		if err == nil {
			m.save(ctx, session)
		}
		return turnProcessedMsg{res, err}
	}
}

func (m model) requestEnding() tea.Cmd {
	session, def := m.session, m.def
	return func() tea.Msg {
		ctx := context.Background()
		out, err := m.engine.Ending(ctx, session, def)
		if err == nil {
			m.save(ctx, session)
		}
		return endingMsg{out, err}
	}
}

// save persists the session from inside a command, so it never races with
// the next turn. Failures are logged; play continues.
func (m model) save(ctx context.Context, session *models.PlaySession) {
	if err := m.store.SaveSession(ctx, session); err != nil {
		m.logger.Error("failed to save session", "session_id", session.SessionID, "error", err)
	}
}

func Run(eng *engine.Engine, store storage.Store, logger *slog.Logger) error {
	p := tea.NewProgram(NewModel(eng, store, logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
