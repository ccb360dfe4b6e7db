// internal/ui/history.go
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"rpchat/internal/models"
)

// ViewMode represents the current view state
type ViewMode int

const (
	ViewChat ViewMode = iota
	ViewSelect
	ViewHelp
	ViewRuns
)

// RunLister reads the local stream journal
type RunLister interface {
	ListRuns(sessionID int64, limit int) ([]models.Run, error)
}

const runsLimit = 200

// RunsState holds the state for the stream journal browser
type RunsState struct {
	runs      []models.Run
	cursor    int
	scrollTop int
	maxHeight int
}

// NewRunsState creates a new runs browser state
func NewRunsState() *RunsState {
	return &RunsState{
		maxHeight: 20, // default, will be updated based on terminal size
	}
}

// Up moves the cursor up
func (h *RunsState) Up() {
	if h.cursor > 0 {
		h.cursor--
		if h.cursor < h.scrollTop {
			h.scrollTop = h.cursor
		}
	}
}

// Down moves the cursor down
func (h *RunsState) Down() {
	if h.cursor < len(h.runs)-1 {
		h.cursor++
		if h.cursor >= h.scrollTop+h.maxHeight {
			h.scrollTop = h.cursor - h.maxHeight + 1
		}
	}
}

// Selected returns the currently selected run, or nil if none
func (h *RunsState) Selected() *models.Run {
	if h.cursor >= 0 && h.cursor < len(h.runs) {
		return &h.runs[h.cursor]
	}
	return nil
}

// SetRuns replaces the listed runs and resets the cursor
func (h *RunsState) SetRuns(runs []models.Run) {
	h.runs = runs
	h.cursor = 0
	h.scrollTop = 0
}

// Load reads the session's runs from the journal
func (h *RunsState) Load(journal RunLister, sessionID int64) error {
	if journal == nil {
		return fmt.Errorf("journal not available")
	}
	runs, err := journal.ListRuns(sessionID, runsLimit)
	if err != nil {
		return err
	}
	h.SetRuns(runs)
	return nil
}

// SetMaxHeight updates the max visible height
func (h *RunsState) SetMaxHeight(height int) {
	h.maxHeight = height - 12 // Leave room for header, footer and detail line
	if h.maxHeight < 5 {
		h.maxHeight = 5
	}
}

// fit truncates or pads s to exactly w terminal cells
func fit(s string, w int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.FillRight(runewidth.Truncate(s, w, ".."), w)
}

func formatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return "<1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// Render renders the runs browser overlay
func (h *RunsState) Render(width, height int) string {
	var content strings.Builder

	content.WriteString(TitleStyle.Render("STREAM JOURNAL"))
	content.WriteString("\n")
	content.WriteString(DimStyle.Render("Replies streamed in this session, newest first"))
	content.WriteString("\n\n")

	if len(h.runs) == 0 {
		content.WriteString(DimStyle.Render("No runs recorded yet."))
	} else {
		visibleEnd := h.scrollTop + h.maxHeight
		if visibleEnd > len(h.runs) {
			visibleEnd = len(h.runs)
		}

		header := fmt.Sprintf("  %-16s  %-10s  %-6s  %s", "Started", "Phase", "Took", "Prompt")
		content.WriteString(DimStyle.Render(header))
		content.WriteString("\n")
		content.WriteString(DimStyle.Render(strings.Repeat("-", 75)))
		content.WriteString("\n")

		for i := h.scrollTop; i < visibleEnd; i++ {
			r := h.runs[i]

			timeStr := r.StartedAt.Local().Format("2006-01-02 15:04")
			if time.Since(r.StartedAt) < 24*time.Hour {
				timeStr = r.StartedAt.Local().Format("Today 15:04")
			}

			cursor := "  "
			lineStyle := DimStyle
			if i == h.cursor {
				cursor = "> "
				lineStyle = lipgloss.NewStyle().Foreground(Cyan)
			}

			phase := PhaseStyle(r.Phase).Width(10).Render(r.Phase)
			line := fmt.Sprintf("%s  %s  %s  %s",
				fit(timeStr, 16), phase, fit(formatElapsed(r.Duration()), 6), fit(r.Prompt, 36))

			content.WriteString(cursor)
			content.WriteString(lineStyle.Render(line))
			content.WriteString("\n")
		}

		if sel := h.Selected(); sel != nil && sel.Error != "" {
			content.WriteString("\n")
			content.WriteString(ErrorStyle.Render(fit(sel.Error, 70)))
			content.WriteString("\n")
		}

		if len(h.runs) > h.maxHeight {
			content.WriteString("\n")
			content.WriteString(DimStyle.Render(fmt.Sprintf("Showing %d-%d of %d",
				h.scrollTop+1, visibleEnd, len(h.runs))))
		}
	}

	content.WriteString("\n\n")
	content.WriteString(DimStyle.Render("Up/Down: Navigate | Esc: Close"))

	overlayStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 2).
		MaxWidth(width - 10).
		MaxHeight(height - 4)

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		overlayStyle.Render(content.String()),
	)
}
