package llm

import "strings"

// DefaultContextSize is the assumed model context window in tokens.
const DefaultContextSize = 3900

// DefaultNumOutput is the token budget reserved for the model's answer.
const DefaultNumOutput = 256

// DefaultPadding is a safety margin subtracted from the packing budget.
const DefaultPadding = 5

const chunkSeparator = "\n\n"

// Window is the context-window policy: it knows how many tokens a prompt
// may consume and repacks text chunks into the fewest groups that each fit.
type Window struct {
	// ContextSize is the model's context window in tokens.
	ContextSize int

	// NumOutput is the token budget reserved for the completion.
	NumOutput int

	// Padding is a safety margin in tokens.
	Padding int

	// CountTokens measures a string in tokens. When nil, a character
	// heuristic of four characters per token is used.
	CountTokens func(string) int
}

// DefaultWindow returns a Window with the package defaults.
func DefaultWindow() Window {
	return Window{
		ContextSize: DefaultContextSize,
		NumOutput:   DefaultNumOutput,
		Padding:     DefaultPadding,
	}
}

func (w Window) count(s string) int {
	if w.CountTokens != nil {
		return w.CountTokens(s)
	}
	return (len(s) + 3) / 4
}

// budget returns the token budget available for packed content once the
// template and the reserved output are accounted for.
func (w Window) budget(tmpl *Template) int {
	budget := w.ContextSize - w.NumOutput - w.Padding
	if tmpl != nil {
		budget -= tmpl.EmptySize(w.count)
	}
	if budget < 1 {
		budget = 1
	}
	return budget
}

// Repack merges and re-splits the given texts into the fewest groups that
// each fit the budget left by the template. Small chunks are greedily
// coalesced; a single oversized chunk is split on word boundaries. Without
// repacking, arbitrarily many small chunks would each cost a separate model
// call at the next reduction level and oversized chunks would overflow the
// context window.
func (w Window) Repack(tmpl *Template, texts []string) []string {
	budget := w.budget(tmpl)

	var pieces []string
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pieces = append(pieces, w.split(text, budget)...)
	}

	var groups []string
	var current strings.Builder
	currentTokens := 0
	sepTokens := w.count(chunkSeparator)

	flush := func() {
		if current.Len() > 0 {
			groups = append(groups, current.String())
			current.Reset()
			currentTokens = 0
		}
	}

	for _, piece := range pieces {
		pieceTokens := w.count(piece)
		cost := pieceTokens
		if currentTokens > 0 {
			cost += sepTokens
		}
		if currentTokens > 0 && currentTokens+cost > budget {
			flush()
			cost = pieceTokens
		}
		if currentTokens > 0 {
			current.WriteString(chunkSeparator)
		}
		current.WriteString(piece)
		currentTokens += cost
	}
	flush()

	return groups
}

// split breaks a single text into pieces of at most budget tokens, cutting
// on word boundaries.
func (w Window) split(text string, budget int) []string {
	if w.count(text) <= budget {
		return []string{text}
	}

	words := strings.Fields(text)
	var pieces []string
	var current strings.Builder
	currentTokens := 0

	for _, word := range words {
		wordTokens := w.count(word + " ")
		if currentTokens > 0 && currentTokens+wordTokens > budget {
			pieces = append(pieces, current.String())
			current.Reset()
			currentTokens = 0
		}
		if currentTokens > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
		currentTokens += wordTokens
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}
