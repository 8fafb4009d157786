package ui

import "github.com/charmbracelet/lipgloss"

// Palette is the set of colors a theme is built from.
type Palette struct {
	Accent  lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Divider lipgloss.Color
	Good    lipgloss.Color
	Warn    lipgloss.Color
	Bad     lipgloss.Color
	Audio   lipgloss.Color
	Caption lipgloss.Color
}

var (
	DarkPalette = Palette{
		Accent:  lipgloss.Color("#00FFFF"),
		Text:    lipgloss.Color("#FFFFFF"),
		Muted:   lipgloss.Color("#666666"),
		Divider: lipgloss.Color("#444444"),
		Good:    lipgloss.Color("#00FF00"),
		Warn:    lipgloss.Color("#FFFF00"),
		Bad:     lipgloss.Color("#FF0000"),
		Audio:   lipgloss.Color("#FF00FF"),
		Caption: lipgloss.Color("#BFDBFE"),
	}

	LightPalette = Palette{
		Accent:  lipgloss.Color("#005F87"),
		Text:    lipgloss.Color("#1C1C1C"),
		Muted:   lipgloss.Color("#808080"),
		Divider: lipgloss.Color("#BCBCBC"),
		Good:    lipgloss.Color("#008700"),
		Warn:    lipgloss.Color("#AF8700"),
		Bad:     lipgloss.Color("#D70000"),
		Audio:   lipgloss.Color("#8700AF"),
		Caption: lipgloss.Color("#1E3A8A"),
	}
)

// Theme holds the styles reused by UI components.
type Theme struct {
	Name string

	Title           lipgloss.Style
	Status          lipgloss.Style
	ConnectedDot    lipgloss.Style
	ConnectingDot   lipgloss.Style
	DisconnectedDot lipgloss.Style
	ErrorText       lipgloss.Style
	Timestamp       lipgloss.Style
	Caption         lipgloss.Style
	Original        lipgloss.Style
	PanelTitle      lipgloss.Style
	PanelTitleFocus lipgloss.Style
	Selected        lipgloss.Style
	Dim             lipgloss.Style
	FooterKey       lipgloss.Style
	FooterDesc      lipgloss.Style
	Divider         lipgloss.Style
	LiveBadge       lipgloss.Style
	ScrollBadge     lipgloss.Style
	PausedBadge     lipgloss.Style
	Playing         lipgloss.Style
	Queued          lipgloss.Style
	Played          lipgloss.Style
}

// NewTheme builds a theme from p.
func NewTheme(name string, p Palette) Theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	bold := func(c lipgloss.Color) lipgloss.Style { return fg(c).Bold(true) }

	return Theme{
		Name:            name,
		Title:           bold(p.Accent),
		Status:          fg(p.Muted),
		ConnectedDot:    bold(p.Good),
		ConnectingDot:   bold(p.Warn),
		DisconnectedDot: bold(p.Bad),
		ErrorText:       fg(p.Bad),
		Timestamp:       fg(p.Muted),
		Caption:         fg(p.Caption),
		Original:        fg(p.Muted).Italic(true),
		PanelTitle:      bold(p.Text),
		PanelTitleFocus: bold(p.Accent),
		Selected:        bold(p.Accent),
		Dim:             fg(p.Muted),
		FooterKey:       bold(p.Warn),
		FooterDesc:      fg(p.Muted),
		Divider:         fg(p.Divider),
		LiveBadge:       bold(p.Good),
		ScrollBadge:     bold(p.Warn),
		PausedBadge:     bold(p.Warn).Reverse(true),
		Playing:         bold(p.Audio),
		Queued:          fg(p.Audio),
		Played:          fg(p.Good),
	}
}

var (
	dark  = NewTheme("dark", DarkPalette)
	light = NewTheme("light", LightPalette)
)

// ThemeFor returns the theme called name; anything but "light" is dark.
func ThemeFor(name string) Theme {
	if name == "light" {
		return light
	}
	return dark
}
