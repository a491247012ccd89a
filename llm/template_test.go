package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Format(t *testing.T) {
	tmpl := NewTemplate("summary", "Context:\n{context}\n\nQuery: {query}\nAnswer:")

	assert.Equal(t, []string{"context", "query"}, tmpl.Placeholders())

	out, err := tmpl.Format(map[string]string{
		"context": "some text",
		"query":   "summarize",
	})
	require.NoError(t, err)
	assert.Equal(t, "Context:\nsome text\n\nQuery: summarize\nAnswer:", out)
}

func TestTemplate_Format_MissingArgument(t *testing.T) {
	tmpl := NewTemplate("summary", "{context} {query}")

	_, err := tmpl.Format(map[string]string{"context": "x"})
	assert.Error(t, err)
}

func TestTemplate_Format_UnknownArgument(t *testing.T) {
	tmpl := NewTemplate("summary", "{context}")

	_, err := tmpl.Format(map[string]string{"context": "x", "typo": "y"})
	assert.Error(t, err)
}

func TestTemplate_Partial(t *testing.T) {
	tmpl := NewTemplate("summary", "Q: {query}\nC: {context}")
	partial := tmpl.Partial(map[string]string{"query": "describe"})

	assert.Equal(t, []string{"context"}, partial.Placeholders())

	out, err := partial.Format(map[string]string{"context": "body"})
	require.NoError(t, err)
	assert.Equal(t, "Q: describe\nC: body", out)
}

func TestTemplate_EmptySize(t *testing.T) {
	tmpl := NewTemplate("t", "abcd{context}")
	size := tmpl.EmptySize(func(s string) int { return len(s) })
	assert.Equal(t, 4, size)
}
