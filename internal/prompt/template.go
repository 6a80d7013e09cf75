package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultTemplates is the ordered list of prompt shapes the detector knows
// about. Earlier templates take priority. `{prompt}` captures the question
// text, `{default}` captures a suggested value, and `{prompt|<pattern>}`
// captures question text terminated by the given pattern.
var DefaultTemplates = []string{
	// npm-style prompts
	"{prompt}:",
	"{prompt}: ({default})",
	// poppins-style prompts
	"❯ {prompt} › {default}",
	`❯ {prompt|\s+}`,
	"> {prompt} ›",
}

var placeholderRe = regexp.MustCompile(`\{(prompt|default)(\|[^}]*)?\}`)

// Template is a compiled prompt template.
type Template struct {
	Source string
	re     *regexp.Regexp
}

// Compile turns a template string into an anchored matcher. The line must
// match the template in full; partial matches would make the priority order
// meaningless (a bare "{prompt}:" would swallow every templated line).
func Compile(source string) (*Template, error) {
	var pattern strings.Builder
	pattern.WriteString("^")

	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(source, -1) {
		pattern.WriteString(regexp.QuoteMeta(source[last:loc[0]]))

		name := source[loc[2]:loc[3]]
		terminated := loc[4] != -1
		if terminated {
			// A separator-terminated capture stops at the first run of
			// characters matching the separator pattern.
			pattern.WriteString(fmt.Sprintf(`(?P<%s>\S+)`, name))
		} else {
			pattern.WriteString(fmt.Sprintf(`(?P<%s>.+?)`, name))
		}
		last = loc[1]
	}
	pattern.WriteString(regexp.QuoteMeta(source[last:]))
	pattern.WriteString("$")

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, fmt.Errorf("compile template %q: %w", source, err)
	}

	return &Template{Source: source, re: re}, nil
}

// MustCompile is Compile for known-good template literals.
func MustCompile(source string) *Template {
	t, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return t
}

// Match attempts to match a cleaned line against the template. It returns
// the captured prompt text, the captured default value if the template has a
// `{default}` placeholder, and whether the match succeeded.
func (t *Template) Match(line string) (promptText, defaultValue string, ok bool) {
	m := t.re.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}

	for i, name := range t.re.SubexpNames() {
		switch name {
		case "prompt":
			promptText = strings.TrimSpace(m[i])
		case "default":
			defaultValue = strings.TrimSpace(m[i])
		}
	}

	if promptText == "" {
		return "", "", false
	}
	return promptText, defaultValue, true
}

// HasDefault reports whether the template carries a `{default}` placeholder.
func (t *Template) HasDefault() bool {
	for _, name := range t.re.SubexpNames() {
		if name == "default" {
			return true
		}
	}
	return false
}
