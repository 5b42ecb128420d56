package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7eb8da")) // steel blue
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c9d1d9")). // light gray
			Width(18)
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7eb8da"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e")) // mid gray
	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7ec699")) // sage green
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4a054")) // amber
	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d48a8a")) // dusty rose
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3d4450")). // slate
			Padding(0, 1)
)

func stateStyle(level alignment.StateLevel) lipgloss.Style {
	switch level {
	case alignment.StateAligned:
		return goodStyle
	case alignment.StateStable:
		return warnStyle
	default:
		return badStyle
	}
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

// renderMetric draws one day's metric as a bordered card.
func renderMetric(m *store.Metric) string {
	flags := "none"
	if len(m.PatternFlags) > 0 {
		flags = warnStyle.Render(strings.Join(m.PatternFlags.Strings(), ", "))
	}

	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s  %s", m.UserID, alignment.DayKey(m.Date))),
		"",
		row("Alignment", valueStyle.Render(fmt.Sprintf("%.2f", m.AlignmentScore))),
		row("Raw score", fmt.Sprintf("%.2f", m.RawScore)),
		row("Multiplier", fmt.Sprintf("x%.2f", m.StreakMultiplier)),
		row("Streak", fmt.Sprintf("%d", m.StreakCount)),
		row("7-day average", fmt.Sprintf("%.2f", m.SevenDayAverage)),
		row("Drift", fmt.Sprintf("%+.3f", m.DriftIndex)),
		row("State", stateStyle(m.StateLevel).Render(m.StateLevel.String())),
		row("Patterns", flags),
		"",
		dimStyle.Render(fmt.Sprintf("core %.2f  support %.2f  habit %.2f  effort %.2f  reflection %.2f",
			m.Components.CoreCompletion,
			m.Components.SupportCompletion,
			m.Components.HabitCompletion,
			m.Components.EffortNormalized,
			m.Components.ReflectionQuality,
		)),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// renderHistory draws a newest-first metric table.
func renderHistory(userID string, metrics []*store.Metric) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("History for "+userID) + "\n\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%-12s %8s %7s %8s  %-10s %s", "DATE", "SCORE", "STREAK", "DRIFT", "STATE", "PATTERNS")) + "\n")
	for _, m := range metrics {
		state := stateStyle(m.StateLevel).Render(fmt.Sprintf("%-10s", m.StateLevel.String()))
		b.WriteString(fmt.Sprintf("%-12s %8.2f %7d %+8.3f  %s %s\n",
			alignment.DayKey(m.Date), m.AlignmentScore, m.StreakCount, m.DriftIndex, state, strings.Join(m.PatternFlags.Strings(), ",")))
	}
	return b.String()
}
