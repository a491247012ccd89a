package node

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	n := New("hello")

	require.NotEmpty(t, n.ID)
	assert.Equal(t, "hello", n.Text)
	assert.NotNil(t, n.Metadata)
	assert.False(t, n.IsDerived())
}

func TestNew_UniqueIDs(t *testing.T) {
	a := New("a")
	b := New("b")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNode_Relationships(t *testing.T) {
	n := New("summary")
	n.Relate(RelSource, "doc-1")
	n.Relate(RelNext, "sib-2")

	src, ok := n.Source()
	require.True(t, ok)
	assert.Equal(t, "doc-1", src)
	assert.True(t, n.IsDerived())

	next, ok := n.Related(RelNext)
	require.True(t, ok)
	assert.Equal(t, "sib-2", next)

	_, ok = n.Related(RelPrevious)
	assert.False(t, ok)
}

func TestNode_Content_Exclusions(t *testing.T) {
	n := New("body text")
	n.SetMetadata("title", "A Title")
	n.SetMetadata("classification_information", "secret signal")
	n.ExcludeFromLLM("classification_information")
	n.ExcludeFromEmbedding("title", "classification_information")

	llm := n.Content(RenderForLLM)
	assert.Contains(t, llm, "title: A Title")
	assert.NotContains(t, llm, "secret signal")
	assert.Contains(t, llm, "body text")

	embed := n.Content(RenderForEmbedding)
	assert.NotContains(t, embed, "A Title")
	assert.NotContains(t, embed, "secret signal")

	assert.Equal(t, "body text", n.Content(RenderTextOnly))
}

func TestNode_ExcludeDuplicates(t *testing.T) {
	n := New("x")
	n.ExcludeFromLLM("type")
	n.ExcludeFromLLM("type")
	assert.Equal(t, []string{"type"}, n.ExcludedLLMKeys)
}

func TestNode_MetadataStrings(t *testing.T) {
	n := New("x")
	n.SetMetadata("tags", []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, n.MetadataStrings("tags"))

	// JSON round-trips produce []any.
	n.SetMetadata("similar_ids", []any{"id-1", "id-2"})
	assert.Equal(t, []string{"id-1", "id-2"}, n.MetadataStrings("similar_ids"))

	assert.Nil(t, n.MetadataStrings("missing"))
}

func TestCollection_AddAndResolve(t *testing.T) {
	c := NewCollection()
	a := New("a").WithID("a")
	b := New("b").WithID("b")
	c.Add(a, b)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	resolved := c.Resolve([]string{"b", "missing", "a"})
	require.Len(t, resolved, 2)
	assert.Equal(t, "b", resolved[0].ID)
	assert.Equal(t, "a", resolved[1].ID)
	assert.Equal(t, 2, c.Len())
}

func TestCollection_JSONRoundTrip(t *testing.T) {
	c := NewCollection()
	n := New("chunk text").WithID("chunk-1")
	n.SetMetadata("title", "T")
	n.Relate(RelSource, "doc-1")
	c.Add(n)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	restored := NewCollection()
	require.NoError(t, json.Unmarshal(data, restored))

	got, ok := restored.Get("chunk-1")
	require.True(t, ok)
	assert.Equal(t, "chunk text", got.Text)
	assert.Equal(t, "T", got.MetadataString("title"))
	src, ok := got.Source()
	require.True(t, ok)
	assert.Equal(t, "doc-1", src)
}

func TestWrapUnwrap(t *testing.T) {
	nodes := []*Node{New("a"), New("b")}
	scored := Wrap(nodes)
	require.Len(t, scored, 2)
	assert.Equal(t, 1.0, scored[0].Score)
	assert.Equal(t, nodes, Unwrap(scored))
}
