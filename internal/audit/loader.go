package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobalert/internal/model"
)

// errCancelled is returned by RunLoader when the user aborts with ctrl+c.
var errCancelled = errors.New("cancelled")

// InspectFunc evaluates every candidate for the chosen term.
type InspectFunc func(ctx context.Context) ([]model.Evaluation, error)

type inspectDoneMsg struct {
	evals []model.Evaluation
	err   error
}

type loaderModel struct {
	term    string
	inspect InspectFunc
	cancel  context.CancelFunc
	ctx     context.Context
	spinner spinner.Model
	result  []model.Evaluation
	err     error
	done    bool
}

func newLoader(term string, inspect InspectFunc, timeout time.Duration) loaderModel {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	return loaderModel{
		term:    term,
		inspect: inspect,
		ctx:     ctx,
		cancel:  cancel,
		spinner: sp,
	}
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(m.doInspect(), m.spinner.Tick)
}

func (m loaderModel) doInspect() tea.Cmd {
	ctx, inspect := m.ctx, m.inspect
	return func() tea.Msg {
		evals, err := inspect(ctx)
		return inspectDoneMsg{evals: evals, err: err}
	}
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case inspectDoneMsg:
		m.result = msg.evals
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.done = true
			m.err = errCancelled
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Searching LinkedIn for %q...\n", m.spinner.View(), m.term)
}

// RunLoader shows a spinner while inspect runs. It renders inline (no alt screen).
func RunLoader(term string, inspect InspectFunc) ([]model.Evaluation, error) {
	m := newLoader(term, inspect, 2*time.Minute)
	defer m.cancel()

	result, err := tea.NewProgram(m).Run()
	if err != nil {
		return nil, err
	}
	final := result.(loaderModel)
	return final.result, final.err
}
