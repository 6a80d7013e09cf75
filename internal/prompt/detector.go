package prompt

import (
	"strings"
	"unicode"
)

// Match is the result of classifying one line of output.
type Match struct {
	// Prompt is the display text of the question, as captured by the
	// winning template.
	Prompt string
	// Default is the suggested value, when the template carries one.
	Default    string
	HasDefault bool
	// Template is the source string of the template that matched.
	Template string
}

// Key returns the machine key used to look the prompt up against scripted
// input.
func (m *Match) Key() string {
	return CamelKey(m.Prompt)
}

// Detector classifies lines as prompt or non-prompt using an ordered
// template list.
type Detector struct {
	templates []*Template
}

// NewDetector compiles the given template sources in priority order. With no
// sources it uses DefaultTemplates.
func NewDetector(sources ...string) (*Detector, error) {
	if len(sources) == 0 {
		sources = DefaultTemplates
	}

	compiled := make([]*Template, 0, len(sources))
	for _, src := range sources {
		t, err := Compile(src)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, t)
	}
	return &Detector{templates: compiled}, nil
}

// Detect runs the line through the template list. The first template that
// yields a non-empty prompt capture wins; there is no backtracking across
// templates.
func (d *Detector) Detect(line string) (*Match, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	for _, t := range d.templates {
		promptText, defaultValue, ok := t.Match(line)
		if !ok {
			continue
		}
		return &Match{
			Prompt:     promptText,
			Default:    defaultValue,
			HasDefault: t.HasDefault() && defaultValue != "",
			Template:   t.Source,
		}, true
	}
	return nil, false
}

// CamelKey normalizes prompt display text to a single camel-case identifier:
// lower-cased, split on whitespace, hyphens and underscores, with subsequent
// words capitalized. Punctuation is dropped.
func CamelKey(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		case r == ' ' || r == '\t' || r == '-' || r == '_':
			return ' '
		default:
			return -1
		}
	}, text)

	words := strings.Fields(strings.ToLower(cleaned))
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(words[0])
	for _, w := range words[1:] {
		runes := []rune(w)
		b.WriteString(strings.ToUpper(string(runes[0])))
		b.WriteString(string(runes[1:]))
	}
	return b.String()
}
