package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
)

// MetaType holds the discovered document type of a node.
const MetaType = "type"

var typeTemplate = llm.NewTemplate("extract.doctype", `Here is a list of information about the content of a document:

{context}

Define the document type as a tag that best describes the type of content of the document.
A type can be for example "encyclopedic-article", "scientific-paper", "biography", "financial-report", "news", "story", etc.

Do not use general types like "book", "article", "document", etc.
Be as specific as possible about the content of the document.

Return the type. Multiple types are not possible. Do not add explanation or comments, only the type.

Example of answer:
biography

Answer:
`)

var cleanTypesTemplate = llm.NewTemplate("extract.cleantypes", `Here is a list of document types:

{types}

Clean this list of types from too much detailed types to have a list of distinct types.

For example if there is "scientific-astronomy-report" and "scientific-paper", merge them into "scientific-paper", "short-story" and "story" into "story", etc.

Return the cleaned types and mapping into JSON format.
Do not add explanation or comments, only the JSON

Example of answer:
{
    "cleaned_types": ["scientific-paper", "story"],
    "mapping": {
        "scientific-paper": ["scientific-astronomy-report", "scientific-paper"],
        "story": ["short-story", "story"]
    }
}

Answer:
`)

var typePromptTemplate = llm.NewTemplate("extract.typeprompt", `What is the best prompt for creating a summary of a {document_type} document in strict CommonMark format with all facts specific to this type?

The summary should be concise and comprehensive text in strict CommonMark markdown format, it should include a title and no introduction to the summary or explanation about the summary.

Do not introduce the prompt, just output the prompt.

Prompt:
`)

// TypeExtractor discovers a document type per node, merges near-duplicate
// types into a clean vocabulary, and generates a type-specific
// summarization prompt for each surviving type.
type TypeExtractor struct {
	completer llm.Completer
	workers   int
}

// NewTypeExtractor creates an extractor with DefaultWorkers.
func NewTypeExtractor(completer llm.Completer) *TypeExtractor {
	return &TypeExtractor{completer: completer, workers: DefaultWorkers}
}

// WithWorkers bounds concurrent extraction calls.
func (e *TypeExtractor) WithWorkers(workers int) *TypeExtractor {
	if workers > 0 {
		e.workers = workers
	}
	return e
}

// Extract annotates every node with its document type, derived from the
// node's classification information. The type is kept out of embeddings
// and LLM renderings.
func (e *TypeExtractor) Extract(ctx context.Context, nodes []*node.Node) error {
	return runJobs(ctx, e.workers, len(nodes), func(ctx context.Context, i int) error {
		n := nodes[i]
		answer, err := llm.Predict(ctx, e.completer, typeTemplate, map[string]string{
			"context": n.MetadataString(MetaInfo),
		})
		if err != nil {
			return fmt.Errorf("extract type for node %s: %w", n.ID, err)
		}
		n.SetMetadata(MetaType, strings.TrimSpace(answer))
		n.ExcludeFromEmbedding(MetaType)
		n.ExcludeFromLLM(MetaType)
		return nil
	})
}

// Regrouped is the result of merging raw document types.
type Regrouped struct {
	// CleanedTypes is the merged type vocabulary.
	CleanedTypes []string `json:"cleaned_types"`

	// Mapping maps each cleaned type to the raw types it absorbed.
	Mapping map[string][]string `json:"mapping"`
}

// Regroup asks the model to merge near-duplicate raw types.
func (e *TypeExtractor) Regroup(ctx context.Context, rawTypes []string) (*Regrouped, error) {
	var list strings.Builder
	for _, t := range rawTypes {
		list.WriteString("- ")
		list.WriteString(t)
		list.WriteString("\n")
	}

	answer, err := llm.Predict(ctx, e.completer, cleanTypesTemplate, map[string]string{
		"types": list.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("regroup types: %w", err)
	}

	var regrouped Regrouped
	if err := json.Unmarshal([]byte(stripFences(answer)), &regrouped); err != nil {
		return nil, shelf.NewParseError("TypeExtractor.Regroup",
			fmt.Errorf("%w: %v", shelf.ErrMalformedResponse, err))
	}
	if len(regrouped.CleanedTypes) == 0 {
		return nil, shelf.NewParseError("TypeExtractor.Regroup",
			fmt.Errorf("%w: empty cleaned_types", shelf.ErrMalformedResponse))
	}
	return &regrouped, nil
}

// ReassignTypes rewrites each node's type to its cleaned equivalent. Types
// absent from the mapping are left as they are.
func ReassignTypes(nodes []*node.Node, mapping map[string][]string) {
	cleaned := make([]string, 0, len(mapping))
	for t := range mapping {
		cleaned = append(cleaned, t)
	}
	sort.Strings(cleaned)

	for _, n := range nodes {
		raw := n.MetadataString(MetaType)
		for _, newType := range cleaned {
			if containsString(mapping[newType], raw) {
				n.SetMetadata(MetaType, newType)
				break
			}
		}
	}
}

// GeneratePrompt asks the model for a summarization prompt tailored to the
// given document type.
func (e *TypeExtractor) GeneratePrompt(ctx context.Context, docType string) (string, error) {
	answer, err := llm.Predict(ctx, e.completer, typePromptTemplate, map[string]string{
		"document_type": docType,
	})
	if err != nil {
		return "", fmt.Errorf("generate summary prompt for type %s: %w", docType, err)
	}
	return strings.TrimSpace(answer), nil
}

// stripFences removes a markdown code fence wrapper if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
