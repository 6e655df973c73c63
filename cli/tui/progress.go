package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/spool/download"
)

// PollInterval is how often the progress view samples the trackers.
const PollInterval = 100 * time.Millisecond

// StatusFunc returns the current snapshot of every tracked download.
type StatusFunc func() []download.TrackerSnapshot

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "cancel and quit"),
	),
}

type tickMsg time.Time

// ProgressModel shows one progress bar per download. The bar tracks
// confirmed against issued chunks, so it reaches 100% only when every
// fragment is durably stored.
type ProgressModel struct {
	status    StatusFunc
	snapshots []download.TrackerSnapshot
	bar       progress.Model
	quitting  bool
	aborted   bool
}

// NewProgressModel creates a progress view polling status.
func NewProgressModel(status StatusFunc) ProgressModel {
	return ProgressModel{
		status: status,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Aborted reports whether the user quit before every download finished.
func (m ProgressModel) Aborted() bool { return m.aborted }

func tick() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-LabelStyle.GetWidth()-24, 10), 60)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			m.aborted = !allTerminal(m.snapshots)
			return m, tea.Quit
		}

	case tickMsg:
		m.snapshots = m.status()
		if len(m.snapshots) > 0 && allTerminal(m.snapshots) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, tick()
	}
	return m, nil
}

func allTerminal(snaps []download.TrackerSnapshot) bool {
	for _, s := range snaps {
		if !s.State.IsTerminal() {
			return false
		}
	}
	return true
}

// Fraction is the share of issued chunks already confirmed.
func Fraction(s download.TrackerSnapshot) float64 {
	switch {
	case s.State == download.StateComplete:
		return 1
	case s.Issued == 0:
		return 0
	default:
		return float64(s.Confirmed) / float64(s.Issued)
	}
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("spool"))
	b.WriteString("\n")
	if len(m.snapshots) == 0 {
		b.WriteString(MutedStyle.Render("waiting for downloads..."))
		b.WriteString("\n")
	}
	for _, s := range m.snapshots {
		fmt.Fprintf(&b, "%s %s %s\n",
			LabelStyle.Render(s.ResourceID),
			m.bar.ViewAs(Fraction(s)),
			StateStyle(s.State).Render(stateText(s)))
	}
	if !m.quitting {
		b.WriteString(HelpStyle.Render("Press q or Ctrl+C to cancel"))
	}
	return b.String()
}

func stateText(s download.TrackerSnapshot) string {
	switch s.State {
	case download.StateFailed:
		return "failed: " + s.Err
	case download.StateComplete:
		return fmt.Sprintf("complete (%d chunks, %s)", s.TotalChunkCount, s.MediaType)
	default:
		return fmt.Sprintf("%s %d/%d", s.State, s.Confirmed, s.Issued)
	}
}

// RunProgress shows the progress view on out until every download is
// terminal, the user quits or ctx ends. Returns true if the user quit
// early.
func RunProgress(ctx context.Context, out io.Writer, status StatusFunc) (bool, error) {
	p := tea.NewProgram(NewProgressModel(status), tea.WithContext(ctx), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(ProgressModel)
	return ok && m.Aborted(), nil
}
