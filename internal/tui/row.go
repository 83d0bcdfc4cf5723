package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/finestructure/historyview/internal/history"
)

// RowState is everything a row needs to render.
type RowState struct {
	Step     history.Step
	Selected bool
	Cursor   bool
	// Position is the 1-based chronological position of the step.
	Position int
}

// Tap is the action a row raises when activated.
func (r RowState) Tap() history.Action {
	return history.Row{ID: r.Step.ID, Action: history.RowTapped}
}

// RenderRow renders one history row, width cells wide.
func RenderRow(r RowState, width int, th Theme) string {
	if width <= 0 {
		return ""
	}
	marker := "  "
	if r.Cursor {
		marker = th.CursorMarker.Render("› ")
	}
	label := strings.TrimSpace(r.Step.Label)
	if label == "" {
		label = "(unnamed step)"
	}
	meta := fmt.Sprintf("#%d %s", r.Position, shortID(r.Step.ID))
	bodyWidth := max(width-lipgloss.Width(marker), 0)
	gap := bodyWidth - lipgloss.Width(label) - lipgloss.Width(meta)
	var body string
	if gap >= 2 {
		body = label + strings.Repeat(" ", gap) + meta
	} else {
		body = ansi.Truncate(label, bodyWidth, "…")
		body += strings.Repeat(" ", max(bodyWidth-lipgloss.Width(body), 0))
	}
	style := th.Row
	if r.Selected {
		style = th.SelectedRow
	}
	return marker + style.Render(body)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
