package viewer

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type footerModel struct {
	resultsFile string
	pairCount   int
	width       int
	ErrMsg      string
}

func NewFooterModel(resultsFile string, pairCount int) footerModel {
	return footerModel{resultsFile: resultsFile, pairCount: pairCount}
}

func (m *footerModel) Init() tea.Cmd {
	return nil
}

func (m *footerModel) Update(_ tea.Msg) (tea.Model, tea.Cmd) {
	return m, nil
}

func (m *footerModel) View() string {
	barColor := surface0
	if m.ErrMsg != "" {
		barColor = pink
	}

	// set up language specific printer for the pair count
	p := message.NewPrinter(language.English)
	counter := p.Sprintf("%d pairs", m.pairCount)
	if m.ErrMsg != "" {
		counter = m.ErrMsg
	}

	bar := mainStyle.Copy().Margin(0, 0, 0, 0).Padding(0, 2).Background(lavender).Foreground(base).AlignVertical(lipgloss.Bottom).Bold(true).Render("Results")
	fillWidth := m.width - 11 - 10 - 2 - len(m.resultsFile) - len(counter) - 1
	middleBarStyle := mainStyle.Copy().Background(barColor).Foreground(defaultTextColor)
	bar += middleBarStyle.PaddingLeft(1).Render(m.resultsFile)
	bar += middleBarStyle.Copy().Width(fillWidth).AlignHorizontal(lipgloss.Right).Render("")
	bar += middleBarStyle.PaddingRight(1).Render(counter)
	bar += mainStyle.Copy().Background(overlay2).Padding(0, 2).Render("? help")
	return bar

}
