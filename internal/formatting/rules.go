// internal/formatting/rules.go
package formatting

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// MaxDelimiterLength is the longest delimiter the rule editor accepts
const MaxDelimiterLength = 3

// Template values for rules added without a delimiter or name
const (
	NewRuleDelimiter = "|"
	NewRuleName      = "New Rule"
)

// Styles holds the presentation attributes applied to a matched span.
// Values use CSS vocabulary since the backend shares them with the web client.
type Styles struct {
	FontWeight      string `json:"fontWeight,omitempty" yaml:"font_weight,omitempty"`
	FontStyle       string `json:"fontStyle,omitempty" yaml:"font_style,omitempty"`
	TextDecoration  string `json:"textDecoration,omitempty" yaml:"text_decoration,omitempty"`
	FontSize        string `json:"fontSize,omitempty" yaml:"font_size,omitempty"`
	Color           string `json:"color,omitempty" yaml:"color,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty" yaml:"background_color,omitempty"`
	FontFamily      string `json:"fontFamily,omitempty" yaml:"font_family,omitempty"`
}

// Rule styles the text between two occurrences of Delimiter
type Rule struct {
	ID        string `json:"id" yaml:"id"`
	Delimiter string `json:"delimiter" yaml:"delimiter"`
	Name      string `json:"name" yaml:"name"`
	Styles    Styles `json:"styles" yaml:"styles"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// Settings is an ordered rule set plus a master switch.
// Rule order matters: it breaks ties between rules opening at the same index.
type Settings struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Rules   []Rule `json:"rules" yaml:"rules"`
}

// Validation errors
var (
	ErrEmptyDelimiter     = errors.New("delimiter must not be empty")
	ErrDelimiterTooLong   = fmt.Errorf("delimiter must be at most %d characters", MaxDelimiterLength)
	ErrDuplicateDelimiter = errors.New("delimiter is used by more than one enabled rule")
	ErrDuplicateID        = errors.New("rule id is not unique")
	ErrEmptyID            = errors.New("rule id must not be empty")
)

// RuleError ties a validation failure to the rule that caused it
type RuleError struct {
	Index int
	Rule  Rule
	Err   error
}

func (e *RuleError) Error() string {
	name := e.Rule.Name
	if name == "" {
		name = e.Rule.ID
	}
	return fmt.Sprintf("rule %d (%s): %v", e.Index, name, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// DefaultRules returns the stock roleplay rules: actions, speech, thoughts, emphasis
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:        "actions",
			Delimiter: "*",
			Name:      "Actions",
			Styles: Styles{
				FontStyle:  "italic",
				Color:      "#8B4513",
				FontFamily: "Georgia, serif",
			},
			Enabled: true,
		},
		{
			ID:        "speech",
			Delimiter: `"`,
			Name:      "Speech",
			Styles: Styles{
				Color:      "#228B22",
				FontFamily: "Arial, sans-serif",
			},
			Enabled: true,
		},
		{
			ID:        "thoughts",
			Delimiter: "~",
			Name:      "Thoughts",
			Styles: Styles{
				FontStyle:  "italic",
				Color:      "#4169E1",
				FontSize:   "0.9em",
				FontFamily: "Times New Roman, serif",
			},
			Enabled: true,
		},
		{
			ID:        "emphasis",
			Delimiter: "_",
			Name:      "Emphasis",
			Styles: Styles{
				FontWeight: "bold",
				Color:      "#DC143C",
			},
			Enabled: true,
		},
	}
}

// DefaultSettings returns enabled settings holding DefaultRules
func DefaultSettings() *Settings {
	return &Settings{
		Enabled: true,
		Rules:   DefaultRules(),
	}
}

// NewRule returns an enabled rule with a time-based id, as the rule editor
// creates them. Empty arguments fall back to the template delimiter and name.
func NewRule(delimiter, name string) Rule {
	if delimiter == "" {
		delimiter = NewRuleDelimiter
	}
	if name == "" {
		name = NewRuleName
	}
	return Rule{
		ID:        fmt.Sprintf("rule_%d", time.Now().UnixMilli()),
		Delimiter: delimiter,
		Name:      name,
		Styles:    Styles{Color: "#000000"},
		Enabled:   true,
	}
}

// Clone returns a deep copy so callers can edit rules without touching shared settings
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := &Settings{Enabled: s.Enabled}
	if s.Rules != nil {
		out.Rules = make([]Rule, len(s.Rules))
		copy(out.Rules, s.Rules)
	}
	return out
}

// ActiveRules returns the enabled rules in configured order.
// Nil settings or a disabled master switch yield nothing.
func (s *Settings) ActiveRules() []Rule {
	if s == nil || !s.Enabled {
		return nil
	}
	var active []Rule
	for _, r := range s.Rules {
		if r.Enabled {
			active = append(active, r)
		}
	}
	return active
}

// Validate reports every problem with the rule set at once.
// Duplicate delimiters only count among enabled rules.
func Validate(s *Settings) error {
	if s == nil {
		return nil
	}

	var errs []error
	ids := make(map[string]int)
	delimiters := make(map[string]int)

	for i, r := range s.Rules {
		if r.ID == "" {
			errs = append(errs, &RuleError{Index: i, Rule: r, Err: ErrEmptyID})
		} else if _, seen := ids[r.ID]; seen {
			errs = append(errs, &RuleError{Index: i, Rule: r, Err: ErrDuplicateID})
		} else {
			ids[r.ID] = i
		}

		if r.Delimiter == "" {
			errs = append(errs, &RuleError{Index: i, Rule: r, Err: ErrEmptyDelimiter})
			continue
		}
		if utf8.RuneCountInString(r.Delimiter) > MaxDelimiterLength {
			errs = append(errs, &RuleError{Index: i, Rule: r, Err: ErrDelimiterTooLong})
		}

		if !r.Enabled {
			continue
		}
		if _, seen := delimiters[r.Delimiter]; seen {
			errs = append(errs, &RuleError{Index: i, Rule: r, Err: ErrDuplicateDelimiter})
		} else {
			delimiters[r.Delimiter] = i
		}
	}

	return errors.Join(errs...)
}
