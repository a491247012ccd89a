package llm

import "context"

// Completer is the text-completion service consumed by the pipeline.
//
// Implementations must be safe for concurrent use: the cascade summarizer
// may dispatch independent completions for one reduction round in parallel.
type Completer interface {
	// Complete generates a completion for the given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Predict formats the template with the given arguments and completes it.
func Predict(ctx context.Context, c Completer, tmpl *Template, args map[string]string) (string, error) {
	prompt, err := tmpl.Format(args)
	if err != nil {
		return "", err
	}
	return c.Complete(ctx, prompt)
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	// InputTokens is the number of tokens in the input/prompt.
	InputTokens int

	// OutputTokens is the number of tokens generated in the response.
	OutputTokens int

	// TotalTokens is the sum of input and output tokens.
	TotalTokens int
}

// Add combines two TokenUsage instances.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}
