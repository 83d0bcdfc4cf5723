package tui

import "github.com/charmbracelet/lipgloss"

// ---------------------------------------------------------------------------
// Catppuccin Mocha palette, true-color hex values
// https://catppuccin.com/palette
// ---------------------------------------------------------------------------

const (
	colorPink     lipgloss.Color = "#f5c2e7"
	colorMauve    lipgloss.Color = "#cba6f7"
	colorRed      lipgloss.Color = "#f38ba8"
	colorPeach    lipgloss.Color = "#fab387"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorLavender lipgloss.Color = "#b4befe"

	colorText     lipgloss.Color = "#cdd6f4"
	colorSubtext0 lipgloss.Color = "#a6adc8"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorOverlay0 lipgloss.Color = "#6c7086"
	colorSurface1 lipgloss.Color = "#45475a"
	colorSurface0 lipgloss.Color = "#313244"
)

// ---------------------------------------------------------------------------
// Semantic color aliases
// ---------------------------------------------------------------------------

const (
	colorAccent  = colorPink
	colorFocus   = colorLavender
	colorSuccess = colorGreen
	colorWarning = colorYellow
	colorInfo    = colorTeal
	colorIdle    = colorOverlay1
)

// Theme holds the styles used by the history view.
type Theme struct {
	Title        lipgloss.Style
	Row          lipgloss.Style
	SelectedRow  lipgloss.Style
	CursorMarker lipgloss.Style
	Meta         lipgloss.Style
	Connected    lipgloss.Style
	Disconnected lipgloss.Style
	Button       lipgloss.Style
	ButtonMuted  lipgloss.Style
	Status       lipgloss.Style
	Broadcast    lipgloss.Style
	HelpKey      lipgloss.Style
	HelpDesc     lipgloss.Style
	Empty        lipgloss.Style
}

func DefaultTheme() Theme {
	return Theme{
		Title:        lipgloss.NewStyle().Bold(true).Foreground(colorMauve),
		Row:          lipgloss.NewStyle().Foreground(colorText),
		SelectedRow:  lipgloss.NewStyle().Bold(true).Foreground(colorSurface0).Background(colorAccent),
		CursorMarker: lipgloss.NewStyle().Foreground(colorFocus),
		Meta:         lipgloss.NewStyle().Foreground(colorOverlay0),
		Connected:    lipgloss.NewStyle().Foreground(colorSuccess),
		Disconnected: lipgloss.NewStyle().Foreground(colorIdle),
		Button:       lipgloss.NewStyle().Foreground(colorText).Background(colorSurface1).Padding(0, 1),
		ButtonMuted:  lipgloss.NewStyle().Foreground(colorOverlay0).Background(colorSurface0).Padding(0, 1),
		Status:       lipgloss.NewStyle().Foreground(colorInfo),
		Broadcast:    lipgloss.NewStyle().Foreground(colorPeach),
		HelpKey:      lipgloss.NewStyle().Foreground(colorFocus),
		HelpDesc:     lipgloss.NewStyle().Foreground(colorSubtext0),
		Empty:        lipgloss.NewStyle().Italic(true).Foreground(colorOverlay0),
	}
}
