package node

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Relation identifies the kind of a relationship link between two nodes.
type Relation string

const (
	// RelSource points at the node this one summarizes or derives from.
	// A node carrying a source link is a derived node; a node without one
	// is a root content unit or a root summary.
	RelSource Relation = "source"

	// RelPrevious points at the preceding sibling among summaries produced
	// in the same reduction round.
	RelPrevious Relation = "previous"

	// RelNext points at the following sibling in the same reduction round.
	RelNext Relation = "next"
)

// RenderMode selects which metadata keys are included when a node's text is
// rendered for a downstream consumer.
type RenderMode int

const (
	// RenderAll includes every metadata key.
	RenderAll RenderMode = iota

	// RenderForEmbedding suppresses keys excluded from embedding input.
	RenderForEmbedding

	// RenderForLLM suppresses keys excluded from LLM context.
	RenderForLLM

	// RenderTextOnly renders the text payload without any metadata.
	RenderTextOnly
)

// Node is a single content unit.
//
// Nodes are immutable by convention: once created they are never deleted,
// only superseded by overwriting Text or backfilling Metadata.
type Node struct {
	// ID is the stable unique identifier. Auto-generated if empty.
	ID string `json:"id"`

	// Text is the content payload.
	Text string `json:"text"`

	// Metadata holds arbitrary scalar or string-list values keyed by name.
	Metadata map[string]any `json:"metadata,omitempty"`

	// ExcludedEmbedKeys lists metadata keys suppressed when rendering the
	// node for embedding input.
	ExcludedEmbedKeys []string `json:"excluded_embed_keys,omitempty"`

	// ExcludedLLMKeys lists metadata keys suppressed when rendering the
	// node for LLM context.
	ExcludedLLMKeys []string `json:"excluded_llm_keys,omitempty"`

	// Relationships maps a relation kind to one or more node id references.
	Relationships map[Relation][]string `json:"relationships,omitempty"`
}

// New creates a Node with a generated id and initialized maps.
func New(text string) *Node {
	return &Node{
		ID:            uuid.NewString(),
		Text:          text,
		Metadata:      make(map[string]any),
		Relationships: make(map[Relation][]string),
	}
}

// WithID sets the node id and returns the node for chaining.
func (n *Node) WithID(id string) *Node {
	n.ID = id
	return n
}

// WithMetadata sets a single metadata value and returns the node for chaining.
func (n *Node) WithMetadata(key string, value any) *Node {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// SetMetadata sets a single metadata value.
func (n *Node) SetMetadata(key string, value any) {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
}

// MetadataString returns the metadata value for key coerced to a string.
// Missing keys and non-string values yield the empty string.
func (n *Node) MetadataString(key string) string {
	if n.Metadata == nil {
		return ""
	}
	if s, ok := n.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// MetadataStrings returns the metadata value for key as a string list.
// JSON round-trips turn []string into []any, so both shapes are accepted.
func (n *Node) MetadataStrings(key string) []string {
	if n.Metadata == nil {
		return nil
	}
	switch v := n.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

// ExcludeFromEmbedding marks metadata keys as suppressed for embedding input.
// Duplicate keys are ignored.
func (n *Node) ExcludeFromEmbedding(keys ...string) {
	n.ExcludedEmbedKeys = appendMissing(n.ExcludedEmbedKeys, keys)
}

// ExcludeFromLLM marks metadata keys as suppressed for LLM context.
// Duplicate keys are ignored.
func (n *Node) ExcludeFromLLM(keys ...string) {
	n.ExcludedLLMKeys = appendMissing(n.ExcludedLLMKeys, keys)
}

func appendMissing(existing []string, keys []string) []string {
	for _, key := range keys {
		found := false
		for _, have := range existing {
			if have == key {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, key)
		}
	}
	return existing
}

// Relate appends node id references under the given relation kind.
func (n *Node) Relate(rel Relation, ids ...string) {
	if n.Relationships == nil {
		n.Relationships = make(map[Relation][]string)
	}
	n.Relationships[rel] = append(n.Relationships[rel], ids...)
}

// SetRelated replaces the references under the given relation kind.
func (n *Node) SetRelated(rel Relation, ids ...string) {
	if n.Relationships == nil {
		n.Relationships = make(map[Relation][]string)
	}
	n.Relationships[rel] = ids
}

// Related returns the first id referenced under the given relation kind.
func (n *Node) Related(rel Relation) (string, bool) {
	ids := n.Relationships[rel]
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// RelatedAll returns every id referenced under the given relation kind.
func (n *Node) RelatedAll(rel Relation) []string {
	return n.Relationships[rel]
}

// Source returns the provenance parent id, if any.
func (n *Node) Source() (string, bool) {
	return n.Related(RelSource)
}

// IsDerived reports whether the node has a provenance parent.
func (n *Node) IsDerived() bool {
	_, ok := n.Source()
	return ok
}

// Content renders the node for a consumer: metadata lines first (sorted by
// key for stable output, minus the mode's excluded keys), then the text.
func (n *Node) Content(mode RenderMode) string {
	if mode == RenderTextOnly || len(n.Metadata) == 0 {
		return n.Text
	}

	excluded := map[string]bool{}
	switch mode {
	case RenderForEmbedding:
		for _, key := range n.ExcludedEmbedKeys {
			excluded[key] = true
		}
	case RenderForLLM:
		for _, key := range n.ExcludedLLMKeys {
			excluded[key] = true
		}
	}

	keys := make([]string, 0, len(n.Metadata))
	for key := range n.Metadata {
		if !excluded[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "%s: %v\n", key, n.Metadata[key])
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(n.Text)
	return b.String()
}

// Validate checks that the node has an id.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node id cannot be empty")
	}
	return nil
}

// Scored pairs a node with a relevance score.
type Scored struct {
	Node  *Node   `json:"node"`
	Score float64 `json:"score"`
}

// WithScore wraps a node with the given score.
func WithScore(n *Node, score float64) Scored {
	return Scored{Node: n, Score: score}
}

// Wrap wraps each node with a neutral score of 1.
func Wrap(nodes []*Node) []Scored {
	scored := make([]Scored, len(nodes))
	for i, n := range nodes {
		scored[i] = Scored{Node: n, Score: 1.0}
	}
	return scored
}

// Unwrap returns the underlying nodes in order.
func Unwrap(scored []Scored) []*Node {
	nodes := make([]*Node, len(scored))
	for i, s := range scored {
		nodes[i] = s.Node
	}
	return nodes
}
