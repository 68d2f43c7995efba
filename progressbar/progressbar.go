// Package progressbar renders one or more percent-driven progress bars with
// bubbletea. Callers send ProgressMsg updates through the returned program;
// the program quits on its own once every bar reaches 100% or the context is
// cancelled.
package progressbar

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	padding  = 2
	maxWidth = 80
)

// ProgressMsg updates the percent of the bar with the matching ID
type ProgressMsg struct {
	ID      int
	Percent float64
}

type ProgressBar struct {
	bar     progress.Model
	name    string
	id      int
	percent float64
}

type ProgressModel struct {
	ProgressBars []*ProgressBar
	doneCount    int
	ctx          context.Context
}

func (m ProgressModel) Init() tea.Cmd {
	return tickCmd()
}

func NewBar(name string, id int, bar progress.Model) *ProgressBar {
	return &ProgressBar{name: name, id: id, bar: bar}
}

func New(ctx context.Context, bars []*ProgressBar) *tea.Program {
	return tea.NewProgram(ProgressModel{
		ProgressBars: bars,
		ctx:          ctx,
	})
}

type tickMsg string

// tickCmd sends out a tickMsg every tick so that the program can be closed if context is done
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second*1, func(_ time.Time) tea.Msg {
		return tickMsg("")
	})
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		select {
		// quit the bubble tea program if the context was cancelled
		case <-m.ctx.Done():
			return m, tea.Quit
		default:
			return m, tickCmd()
		}

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		for _, prog := range m.ProgressBars {
			prog.bar.Width = msg.Width - padding*2 - 4
			if prog.bar.Width > maxWidth {
				prog.bar.Width = maxWidth
			}
		}
		return m, nil
	case ProgressMsg:
		doneCount := 0
		for _, prog := range m.ProgressBars {
			// if the progress bar's id matches the message's id, update the bar's percent
			if prog.id == msg.ID {
				prog.percent = msg.Percent
			}
			// check if the progress is 100% for each bar, regardless of ID
			if prog.percent == 1.0 {
				doneCount++
			}
		}
		// check that all bars are complete before exiting the progress program
		if doneCount == len(m.ProgressBars) {
			return m, tea.Quit
		}
		m.doneCount = doneCount
		return m, nil
	default:
		return m, nil
	}

}

func (m ProgressModel) View() string {
	pad := strings.Repeat(" ", padding)
	render := ""

	for _, prog := range m.ProgressBars {
		render += "\n" + prog.name
		if prog.percent == 1.0 {
			render += " 🎉"
		}
		render += pad + prog.bar.ViewAs(prog.percent) + "\n\n"
	}
	return render
}
