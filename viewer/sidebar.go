package viewer

import (
	"fmt"
	"math"

	"github.com/activecm/rcr/report"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var sideBarStyle = lipgloss.NewStyle()

const minChartWidth = 24

type stat struct {
	label string
	value string
	color lipgloss.AdaptiveColor
}

type sidebarModel struct {
	Viewport      viewport.Model
	Data          *Item
	ScrollEnabled bool
}

func NewSidebarModel(initialData *Item) sidebarModel {
	return sidebarModel{
		Viewport: viewport.Model{},
		Data:     initialData,
	}
}

func (m *sidebarModel) Init() tea.Cmd {
	m.Viewport.SetContent(m.getSidebarContents())
	return nil
}
func (m *sidebarModel) Update(_ tea.Msg) (tea.Model, tea.Cmd) {
	return m, nil
}

func (m *sidebarModel) View() string {
	m.Viewport.SetContent(m.getSidebarContents())
	borderColor := mauve
	if m.ScrollEnabled {
		borderColor = green
	}
	style := sideBarStyle.
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor)

	return style.Render(m.Viewport.View())
}

func (m *sidebarModel) getSidebarContents() string {
	if m.Data == nil {
		return ""
	}

	// get header
	headerPadding := 2

	headerLabelStyle := lipgloss.NewStyle().Padding(0, headerPadding).Background(overlay0).Foreground(defaultTextColor).Bold(true)
	headerValueStyle := lipgloss.NewStyle().Padding(0, headerPadding).Background(mauve).Foreground(base).Bold(true)

	labelHeader := "LABEL"
	labelStyle := lipgloss.NewStyle().Width(m.Viewport.Width - len(labelHeader) - (headerPadding * 4))
	dstHeader := "DST"
	dstStyle := lipgloss.NewStyle().Width(m.Viewport.Width - len(dstHeader) - (headerPadding * 4))

	label := lipgloss.JoinHorizontal(lipgloss.Left, headerLabelStyle.Render(labelHeader), headerValueStyle.Render(Truncate(m.Data.GetLabel(), &labelStyle)))
	dst := lipgloss.JoinHorizontal(lipgloss.Left, headerLabelStyle.Render(dstHeader), headerValueStyle.Render(Truncate(m.Data.GetIP(), &dstStyle)))
	target := lipgloss.JoinVertical(lipgloss.Top, lipgloss.NewStyle().MarginBottom(1).Render(label), dst)

	heading := lipgloss.NewStyle().MarginBottom(1).Render(target)

	sectionStyle := lipgloss.NewStyle().
		Foreground(overlay2).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(surface0).
		Width(m.Viewport.Width)

	parts := []string{heading}

	// surface the skip reason ahead of the score when a pair couldn't be scored
	if m.Data.InsufficientData {
		insufficient := renderStat(stat{label: "Insufficient Data", value: m.Data.Reason, color: red})
		parts = append(parts, lipgloss.NewStyle().MarginBottom(1).Render(insufficient))
	}

	parts = append(parts, sectionStyle.Render("「 Score 」"), m.renderStats(m.getScoreStats()))

	parts = append(parts, sectionStyle.Render("「 Sample 」"), m.renderSampleInfo())

	if len(m.Data.BucketCounts) > 0 {
		chartWidth := m.Viewport.Width - 10
		if chartWidth < minChartWidth {
			chartWidth = minChartWidth
		}
		chart := report.BucketChart(m.Data.BucketCounts, chartWidth)
		parts = append(parts, sectionStyle.Render("「 Bucket Occupancy 」"), chart)
	}

	// join contents
	return lipgloss.JoinVertical(lipgloss.Top, parts...)
}

// renderStats flows stat blocks left to right, wrapping to a new line
// whenever the next block would overflow the viewport
func (m *sidebarModel) renderStats(statList []stat) string {
	var renderedStats []string
	for _, s := range statList {
		renderedStats = append(renderedStats, renderStat(s))
	}
	newlineStyle := lipgloss.NewStyle().PaddingRight(1).BorderForeground(overlay2).Border(lipgloss.NormalBorder(), false, true, false, false)
	linebreakStyle := lipgloss.NewStyle().MarginBottom(1)

	var statLines []string
	var currentStats string
	for i, s := range renderedStats {
		if i == 0 {
			currentStats = newlineStyle.Render(s)
		} else {
			joined := lipgloss.JoinHorizontal(lipgloss.Left, currentStats, lipgloss.NewStyle().Padding(0, 1).BorderForeground(overlay2).Border(lipgloss.NormalBorder(), false, true, false, false).Render(s))

			width := lipgloss.Width(joined)
			if m.Viewport.Width <= width {
				statLines = append(statLines, lipgloss.JoinHorizontal(lipgloss.Left, linebreakStyle.Render(currentStats)))
				currentStats = s
				if i != len(renderedStats)-1 {
					currentStats = newlineStyle.Render(s)
				}
			} else {
				currentStats = joined
			}
		}
	}
	statLines = append(statLines, linebreakStyle.Render(currentStats))
	return lipgloss.JoinVertical(lipgloss.Top, statLines...)
}

func (m *sidebarModel) getScoreStats() []stat {
	score := float64(m.Data.Score)

	var scoreColor lipgloss.AdaptiveColor
	switch {
	case math.IsNaN(score):
		scoreColor = overlay2
	case score >= criticalScoreLevel:
		scoreColor = red
	case score >= highScoreLevel:
		scoreColor = peach
	case score >= mediumScoreLevel:
		scoreColor = yellow
	default:
		scoreColor = sapphire
	}

	return []stat{
		{label: "RCR", value: report.FormatScore(m.Data.Score), color: scoreColor},
		{label: "Coverage", value: m.Data.GetCoverage(), color: overlay2},
		{label: "Clusters", value: m.Data.GetClusters(), color: overlay2},
	}
}

func (m *sidebarModel) renderSampleInfo() string {
	statHeaderStyle := lipgloss.NewStyle().Background(overlay2).Foreground(base).Bold(true).Padding(0, 2)

	logHeader := statHeaderStyle.Render("Log File")
	parts := []string{lipgloss.JoinVertical(lipgloss.Top, logHeader, m.Data.GetLog())}

	connHeader := statHeaderStyle.MarginTop(1).Render("Connections")
	parts = append(parts, lipgloss.JoinVertical(lipgloss.Top, connHeader, m.Data.GetSample()))

	outlierHeader := statHeaderStyle.MarginTop(1).Render("Outliers Removed")
	parts = append(parts, lipgloss.JoinVertical(lipgloss.Top, outlierHeader, fmt.Sprintf("%d", m.Data.OutliersRemoved())))

	if m.Data.MalformedCount > 0 {
		malformedHeader := statHeaderStyle.MarginTop(1).Render("Malformed Records Skipped")
		parts = append(parts, lipgloss.JoinVertical(lipgloss.Top, malformedHeader, fmt.Sprintf("%d", m.Data.MalformedCount)))
	}

	if m.Data.RawCount > 0 {
		spanHeader := statHeaderStyle.MarginTop(1).Render("Sample Span")
		parts = append(parts, lipgloss.JoinVertical(lipgloss.Top, spanHeader, report.FormatSpan(m.Data.SampleSpan)))
	}

	// the selected range only exists once at least two sizes survived filtering
	if m.Data.FilteredCount >= 2 {
		rangeHeader := statHeaderStyle.MarginTop(1).Render("Selected Range")
		parts = append(parts, lipgloss.JoinVertical(lipgloss.Top, rangeHeader, report.FormatSpan(m.Data.SelectedRange)))
	}

	return lipgloss.JoinVertical(lipgloss.Top, parts...)
}

func renderStat(s stat) string {
	header := lipgloss.NewStyle().Background(s.color).Foreground(base).Bold(true).Padding(0, 2).Render(s.label)

	data := lipgloss.NewStyle().Foreground(defaultTextColor).Render(s.value)
	return lipgloss.JoinVertical(lipgloss.Top, header, data)
}
