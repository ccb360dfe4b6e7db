// internal/ui/selector.go
package ui

import (
	"fmt"
	"strings"

	"rpchat/internal/models"
	"rpchat/internal/render"
)

// Selector lets the user pick one of a character's opening lines
// before the first message is stored. Navigation wraps around.
type Selector struct {
	options []models.FirstMessage
	index   int
}

// NewSelector returns nil when there is nothing to choose from
func NewSelector(options []models.FirstMessage) *Selector {
	var usable []models.FirstMessage
	for _, o := range options {
		if strings.TrimSpace(o.Content) != "" {
			usable = append(usable, o)
		}
	}
	if len(usable) == 0 {
		return nil
	}
	return &Selector{options: usable}
}

func (s *Selector) Next() {
	s.index = (s.index + 1) % len(s.options)
}

func (s *Selector) Prev() {
	s.index = (s.index - 1 + len(s.options)) % len(s.options)
}

func (s *Selector) Current() models.FirstMessage {
	return s.options[s.index]
}

func (s *Selector) Index() int {
	return s.index
}

func (s *Selector) Len() int {
	return len(s.options)
}

// Render shows the current option framed with its position
func (s *Selector) Render(name string, r *render.Renderer, width int) string {
	var content strings.Builder

	content.WriteString(TitleStyle.Render("OPENING MESSAGE"))
	content.WriteString("\n")
	content.WriteString(DimStyle.Render(fmt.Sprintf("How should %s start? (%d/%d)", name, s.index+1, len(s.options))))
	content.WriteString("\n\n")
	content.WriteString(r.Render(s.Current().Content))
	content.WriteString("\n\n")
	content.WriteString(DimStyle.Render("Left/Right: Browse | Enter: Start with this | Esc: Start without"))

	boxWidth := width - 10
	if boxWidth < 20 {
		boxWidth = 20
	}
	return ActiveBox.
		Padding(1, 2).
		Width(boxWidth).
		Render(content.String())
}
