package formatting

import "strings"

// Segment is a run of text, styled when Rule is non-nil
type Segment struct {
	Content string
	Rule    *Rule
}

// Styled reports whether the segment came from a matched delimiter pair
func (s Segment) Styled() bool {
	return s.Rule != nil
}

// match is a complete open/close pair found during a scan
type match struct {
	start int // index of the opening delimiter
	end   int // index just past the closing delimiter
	rule  *Rule
}

// Parse splits text into segments using the enabled rules of settings.
//
// Scanning is left to right. At each step every active rule looks for its
// delimiter at or after the cursor and for a second occurrence after that one.
// The pair whose opening delimiter comes first wins; pairs opening at the same
// index go to the rule listed first. Delimiters without a closing partner stay
// in the text. Matched spans are not scanned again, so spans never nest.
//
// With formatting off (nil settings, disabled, or no enabled rules) the text is
// returned untouched as a single segment.
func Parse(text string, settings *Settings) []Segment {
	if settings == nil || !settings.Enabled || len(settings.Rules) == 0 {
		return []Segment{{Content: text}}
	}

	rules := usableRules(settings)
	if len(rules) == 0 {
		return []Segment{{Content: text}}
	}

	var segments []Segment
	cursor := 0

	for cursor < len(text) {
		m, ok := nextMatch(text, cursor, rules)
		if !ok {
			segments = append(segments, Segment{Content: text[cursor:]})
			break
		}

		if m.start > cursor {
			segments = append(segments, Segment{Content: text[cursor:m.start]})
		}

		width := len(m.rule.Delimiter)
		segments = append(segments, Segment{
			Content: text[m.start+width : m.end-width],
			Rule:    m.rule,
		})

		cursor = m.end
	}

	return segments
}

// usableRules returns pointers to copies of the enabled rules with a delimiter.
// Copies keep returned segments independent of the caller's settings.
func usableRules(settings *Settings) []*Rule {
	active := settings.ActiveRules()
	rules := make([]*Rule, 0, len(active))
	for i := range active {
		// an empty delimiter would match everywhere without advancing
		if active[i].Delimiter == "" {
			continue
		}
		r := active[i]
		rules = append(rules, &r)
	}
	return rules
}

func nextMatch(text string, cursor int, rules []*Rule) (match, bool) {
	var best match
	found := false

	for _, rule := range rules {
		open := strings.Index(text[cursor:], rule.Delimiter)
		if open < 0 {
			continue
		}
		open += cursor

		afterOpen := open + len(rule.Delimiter)
		closing := strings.Index(text[afterOpen:], rule.Delimiter)
		if closing < 0 {
			continue
		}
		closing += afterOpen

		// strict comparison keeps the earlier rule on ties
		if !found || open < best.start {
			best = match{
				start: open,
				end:   closing + len(rule.Delimiter),
				rule:  rule,
			}
			found = true
		}
	}

	return best, found
}

// Plain joins segment contents, dropping styling
func Plain(segments []Segment) string {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteString(s.Content)
	}
	return sb.String()
}
