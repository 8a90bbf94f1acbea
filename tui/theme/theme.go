// Package theme holds the colors and styles shared by tracker's terminal UI.
package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors is a palette. Values are lipgloss color strings.
type Colors struct {
	Green                lipgloss.TerminalColor
	Yellow               lipgloss.TerminalColor
	Red                  lipgloss.TerminalColor
	Cyan                 lipgloss.TerminalColor
	Violet               lipgloss.TerminalColor
	LightText            lipgloss.TerminalColor
	MutedText            lipgloss.TerminalColor
	Border               lipgloss.TerminalColor
	VerySubtleBackground lipgloss.TerminalColor
}

// Theme is the set of rendered styles.
type Theme struct {
	Name string

	Header      lipgloss.Style
	Title       lipgloss.Style
	Success     lipgloss.Style
	Warning     lipgloss.Style
	Error       lipgloss.Style
	Muted       lipgloss.Style
	Highlight   lipgloss.Style
	TableHeader lipgloss.Style
	TableRow    lipgloss.Style
	Box         lipgloss.Style

	// UseAlternatingRows is off for the terminal theme, whose background
	// is unknown.
	UseAlternatingRows bool

	Colors Colors
}

// DefaultTheme is selected once from TRACKER_THEME.
var DefaultTheme = NewThemeWithName(os.Getenv("TRACKER_THEME"))

var themeRegistry = map[string]func() Colors{
	"kanagawa": newKanagawaColors,
	"terminal": newTerminalColors,
}

// NewThemeWithName builds a theme; unknown names fall back to kanagawa.
func NewThemeWithName(name string) *Theme {
	name = strings.ToLower(strings.TrimSpace(name))
	build, ok := themeRegistry[name]
	if !ok {
		name, build = "kanagawa", newKanagawaColors
	}
	c := build()
	return &Theme{
		Name:               name,
		Header:             lipgloss.NewStyle().Bold(true).Foreground(c.Cyan),
		Title:              lipgloss.NewStyle().Bold(true).Foreground(c.LightText),
		Success:            lipgloss.NewStyle().Foreground(c.Green),
		Warning:            lipgloss.NewStyle().Foreground(c.Yellow),
		Error:              lipgloss.NewStyle().Bold(true).Foreground(c.Red),
		Muted:              lipgloss.NewStyle().Foreground(c.MutedText),
		Highlight:          lipgloss.NewStyle().Bold(true).Foreground(c.Violet),
		TableHeader:        lipgloss.NewStyle().Bold(true).Foreground(c.Cyan),
		TableRow:           lipgloss.NewStyle().Foreground(c.LightText),
		Box:                lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(c.Border).Padding(0, 1),
		UseAlternatingRows: name != "terminal",
		Colors:             c,
	}
}

// RenderHeader renders a section header.
func RenderHeader(title string) string {
	return DefaultTheme.Header.Render(title)
}

func newKanagawaColors() Colors {
	return Colors{
		Green:                lipgloss.AdaptiveColor{Dark: "#98BB6C", Light: "#4E7C5A"},
		Yellow:               lipgloss.AdaptiveColor{Dark: "#FF9E3B", Light: "#A68A64"},
		Red:                  lipgloss.AdaptiveColor{Dark: "#FF5D62", Light: "#C34043"},
		Cyan:                 lipgloss.AdaptiveColor{Dark: "#7E9CD8", Light: "#5B8BBE"},
		Violet:               lipgloss.AdaptiveColor{Dark: "#957FB8", Light: "#674D7A"},
		LightText:            lipgloss.AdaptiveColor{Dark: "#DCD7BA", Light: "#2B2F42"},
		MutedText:            lipgloss.AdaptiveColor{Dark: "#727169", Light: "#6C7086"},
		Border:               lipgloss.AdaptiveColor{Dark: "#363646", Light: "#B5BDC5"},
		VerySubtleBackground: lipgloss.AdaptiveColor{Dark: "#181820", Light: "#EFF1F8"},
	}
}

// newTerminalColors uses the 16 ANSI colors so the user's palette applies.
func newTerminalColors() Colors {
	return Colors{
		Green:                lipgloss.Color("2"),
		Yellow:               lipgloss.Color("3"),
		Red:                  lipgloss.Color("1"),
		Cyan:                 lipgloss.Color("6"),
		Violet:               lipgloss.Color("5"),
		LightText:            lipgloss.NoColor{},
		MutedText:            lipgloss.Color("8"),
		Border:               lipgloss.Color("8"),
		VerySubtleBackground: lipgloss.NoColor{},
	}
}
