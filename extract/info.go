package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
)

// MetaInfo holds the per-document classification information: a title and
// candidate classifications the taxonomy synthesis works from.
const MetaInfo = "classification_information"

var infoTemplate = llm.NewTemplate("extract.info", `Here is the context:
{context}

Provide a title and a list of 10 possible hierarchical classifications for the document.

Generate a short answer. Do not introduce the answer or the questions.

Answer:
`)

// InfoExtractor asks the model, per document, for a title and candidate
// classifications. The result lands in the node's metadata and is kept out
// of LLM renderings so later prompts see the document text, not the
// extraction output.
type InfoExtractor struct {
	completer llm.Completer
	workers   int
}

// NewInfoExtractor creates an extractor with DefaultWorkers.
func NewInfoExtractor(completer llm.Completer) *InfoExtractor {
	return &InfoExtractor{completer: completer, workers: DefaultWorkers}
}

// WithWorkers bounds concurrent extraction calls.
func (e *InfoExtractor) WithWorkers(workers int) *InfoExtractor {
	if workers > 0 {
		e.workers = workers
	}
	return e
}

// Extract annotates every node with classification information.
func (e *InfoExtractor) Extract(ctx context.Context, nodes []*node.Node) error {
	return runJobs(ctx, e.workers, len(nodes), func(ctx context.Context, i int) error {
		n := nodes[i]
		info, err := llm.Predict(ctx, e.completer, infoTemplate, map[string]string{
			"context": n.Content(node.RenderForLLM),
		})
		if err != nil {
			return fmt.Errorf("extract info for node %s: %w", n.ID, err)
		}
		n.SetMetadata(MetaInfo, strings.TrimSpace(info))
		n.ExcludeFromLLM(MetaInfo)
		return nil
	})
}
