package audit

import (
	"cmp"
	"fmt"
	"maps"
	"os/exec"
	"runtime"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobalert/internal/model"
)

// Lines per candidate in the list view (title + subtitle + blank separator).
const itemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

const (
	paneAll = iota
	paneAccepted
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle   = headerStyle.Foreground(lipgloss.Color("39"))
	inactiveHeaderStyle = headerStyle.Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(12)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)
)

type auditModel struct {
	term      string
	all       []model.Evaluation
	accepted  []model.Evaluation
	panes     [2]viewport.Model
	cursors   [2]int
	active    int
	width     int
	height    int
	ready     bool
	view      viewState
	detail    model.Evaluation
	detailVP  viewport.Model
	wantQuit  bool
	openURLFn func(string)
}

func newAuditModel(term string, evals []model.Evaluation) auditModel {
	m := auditModel{term: term, all: evals, openURLFn: openURL}
	for _, ev := range evals {
		if ev.Accepted {
			m.accepted = append(m.accepted, ev)
		}
	}
	return m
}

func (m auditModel) Init() tea.Cmd {
	return nil
}

func (m auditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailVP.Width = m.width - 4
			m.detailVP.Height = m.height - 4
			m.detailVP.SetContent(renderDetail(m.detail))
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}
	return m, nil
}

func (m auditModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		return m, tea.Quit
	case "tab", "left", "right":
		m.active = 1 - m.active
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		return m, nil
	case "enter":
		return m.openDetailView(), nil
	}

	// pgup/pgdn/home/end scroll the active pane.
	var cmd tea.Cmd
	m.panes[m.active], cmd = m.panes[m.active].Update(msg)
	return m, cmd
}

func (m auditModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if m.detail.Candidate.Link != "" {
			m.openURLFn(m.detail.Candidate.Link)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailVP, cmd = m.detailVP.Update(msg)
	return m, cmd
}

func (m auditModel) list(pane int) []model.Evaluation {
	if pane == paneAll {
		return m.all
	}
	return m.accepted
}

func (m *auditModel) moveCursor(delta int) {
	n := len(m.list(m.active))
	m.cursors[m.active] = clamp(m.cursors[m.active]+delta, 0, max(n-1, 0))
	m.recalcContent()

	vp := &m.panes[m.active]
	top := m.cursors[m.active] * itemHeight
	bottom := top + itemHeight - 1
	if top < vp.YOffset {
		vp.SetYOffset(top)
	} else if bottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(bottom - vp.Height + 1)
	}
}

func (m auditModel) openDetailView() auditModel {
	evals := m.list(m.active)
	if len(evals) == 0 {
		return m
	}
	m.view = viewDetail
	m.detail = evals[m.cursors[m.active]]
	m.detailVP = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
	m.detailVP.SetContent(renderDetail(m.detail))
	return m
}

func (m *auditModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)
	// Header (1 line) + border top/bottom (2) + status bar (1).
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.panes[paneAll] = viewport.New(paneWidth, paneHeight)
		m.panes[paneAccepted] = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		for i := range m.panes {
			m.panes[i].Width = paneWidth
			m.panes[i].Height = paneHeight
		}
	}
	m.recalcContent()
}

func (m *auditModel) recalcContent() {
	for pane := range m.panes {
		m.panes[pane].SetContent(renderList(m.list(pane), m.cursors[pane], m.active == pane))
	}
}

func (m auditModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m auditModel) viewList() string {
	paneWidth := m.panes[paneAll].Width
	headers := [2]string{
		fmt.Sprintf(" All Candidates (%d)", len(m.all)),
		fmt.Sprintf(" Accepted (%d)", len(m.accepted)),
	}

	var renderedHeaders, renderedPanes [2]string
	for pane := range m.panes {
		hs, bs := inactiveHeaderStyle, inactiveBorderStyle
		if pane == m.active {
			hs, bs = activeHeaderStyle, activeBorderStyle
		}
		renderedHeaders[pane] = lipgloss.NewStyle().Width(paneWidth + 2).Render(hs.Render(headers[pane]))
		renderedPanes[pane] = bs.Width(paneWidth).Render(m.panes[pane].View())
	}

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top, renderedHeaders[0], " ", renderedHeaders[1])
	panes := lipgloss.JoinHorizontal(lipgloss.Top, renderedPanes[0], " ", renderedPanes[1])

	statusText := fmt.Sprintf(" %s | %d total | %d accepted | %s    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		m.term, len(m.all), len(m.accepted), summarizeReasons(m.all))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m auditModel) viewDetail() string {
	title := detailTitleStyle.Render("Candidate Details")
	content := activeBorderStyle.Width(m.width - 2).Render(m.detailVP.View())
	statusBar := statusBarStyle.Width(m.width).Render(" o open link  esc/backspace back  ↑/↓ scroll  q quit")
	return title + "\n" + content + "\n" + statusBar
}

func renderDetail(ev model.Evaluation) string {
	c := ev.Candidate
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	addField("Title", c.Title)
	addField("Company", c.Company)
	addField("Location", c.Location)
	addField("Posted", c.Recency)
	b.WriteByte('\n')
	addField("Search", ev.Query.String())
	addField("Verdict", verdict(ev))
	b.WriteByte('\n')
	addField("Link", c.Link)
	return b.String()
}

func verdict(ev model.Evaluation) string {
	if ev.Accepted {
		return acceptedStyle.Render("✓ accepted")
	}
	return rejectedStyle.Render("✗ " + ev.Reason)
}

func renderList(evals []model.Evaluation, cursor int, isActive bool) string {
	if len(evals) == 0 {
		return "  (no candidates)"
	}

	var b strings.Builder
	for i, ev := range evals {
		ts, ss, prefix := titleStyle, subtitleStyle, "  "
		if isActive && i == cursor {
			ts, ss, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}

		b.WriteString(prefix)
		b.WriteString(ts.Render(ev.Candidate.Title))
		b.WriteByte('\n')

		sub := fmt.Sprintf("%s · %s · %s", ev.Candidate.Company, ev.Query.Location, orNA(ev.Candidate.Recency))
		if !ev.Accepted {
			sub += " · " + ev.Reason
		}
		b.WriteString(prefix)
		b.WriteString(ss.Render(sub))
		b.WriteByte('\n')

		if i < len(evals)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// summarizeReasons counts rejections by reason, most common first.
func summarizeReasons(evals []model.Evaluation) string {
	counts := make(map[string]int)
	for _, ev := range evals {
		if !ev.Accepted {
			counts[ev.Reason]++
		}
	}
	if len(counts) == 0 {
		return "no rejections"
	}

	reasons := slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("%d %s", counts[r], r))
	}
	return strings.Join(parts, ", ")
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunAuditTUI launches the split-pane view of every candidate for term and
// the subset the matcher accepted. Returns wantQuit=true if the user pressed
// q/ctrl+c, false if they pressed esc to return to the picker.
func RunAuditTUI(term string, evals []model.Evaluation) (bool, error) {
	result, err := tea.NewProgram(newAuditModel(term, evals), tea.WithAltScreen()).Run()
	if err != nil {
		return false, err
	}
	return result.(auditModel).wantQuit, nil
}
