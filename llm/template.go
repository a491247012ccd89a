package llm

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Template is a prompt template with named placeholders of the form {name}.
// The template text itself is opaque; only the placeholder set is contract.
type Template struct {
	name string
	text string
}

// NewTemplate creates a named template from the given text.
func NewTemplate(name, text string) *Template {
	return &Template{name: name, text: text}
}

// Name returns the template name, used for logging and cache keys.
func (t *Template) Name() string {
	return t.name
}

// Placeholders returns the distinct placeholder names in order of first use.
func (t *Template) Placeholders() []string {
	seen := map[string]bool{}
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(t.text, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}

// Format substitutes the given arguments into the template. Every
// placeholder must be supplied; unknown arguments are rejected so typos
// surface at the call site instead of producing a silently broken prompt.
func (t *Template) Format(args map[string]string) (string, error) {
	placeholders := map[string]bool{}
	for _, name := range t.Placeholders() {
		placeholders[name] = true
	}

	for name := range args {
		if !placeholders[name] {
			return "", fmt.Errorf("template %q has no placeholder {%s}", t.name, name)
		}
	}

	out := t.text
	for _, name := range t.Placeholders() {
		value, ok := args[name]
		if !ok {
			return "", fmt.Errorf("template %q missing argument {%s}", t.name, name)
		}
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out, nil
}

// Partial returns a template with some placeholders pre-filled. The
// returned template keeps the remaining placeholders.
func (t *Template) Partial(args map[string]string) *Template {
	out := t.text
	for name, value := range args {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return &Template{name: t.name, text: out}
}

// EmptySize returns the rendered size of the template with all
// placeholders blank, measured by the given token counter. The context
// window policy uses it to compute the budget left for packed content.
func (t *Template) EmptySize(count func(string) int) int {
	blank := placeholderPattern.ReplaceAllString(t.text, "")
	return count(blank)
}
