package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	ColorIce   = lipgloss.Color("#A8D8EA") // accents
	ColorDeep  = lipgloss.Color("#596E79") // secondary text
	ColorAlert = lipgloss.Color("#FF6B6B") // errors, removed lines
	ColorGood  = lipgloss.Color("#4ECDC4") // success, added lines
	ColorWarn  = lipgloss.Color("#FFE66D") // warnings
	ColorMuted = lipgloss.Color("#6c757d")
)

var (
	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorIce).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorDeep).
			Padding(0, 1)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorIce).
			Bold(true)

	StyleSubtitle = lipgloss.NewStyle().
			Foreground(ColorDeep).
			Italic(true)

	StyleStatusGood = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleStatusBad  = lipgloss.NewStyle().Foreground(ColorAlert).Bold(true)
	StyleStatusWarn = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)

	StyleDiffAdd    = lipgloss.NewStyle().Foreground(ColorGood)
	StyleDiffRemove = lipgloss.NewStyle().Foreground(ColorAlert)
	StyleDiffHunk   = lipgloss.NewStyle().Foreground(ColorMuted)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDeep).
			Padding(0, 1)
)

// Heading renders a section heading.
func Heading(title string, count int) string {
	return StyleHeader.Render(title) + " " + StyleSubtitle.Render(pluralCount(count))
}

func pluralCount(n int) string {
	if n == 1 {
		return "(1 entry)"
	}
	return "(" + strconv.Itoa(n) + " entries)"
}

// ColorDiff colors a unified diff line by line.
func ColorDiff(diff string) string {
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			lines[i] = StyleTitle.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = StyleDiffHunk.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = StyleDiffAdd.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = StyleDiffRemove.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
