package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/magicshelf/shelf/classify"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
)

// taxonomyBatchSize is how many documents each taxonomy synthesis call
// sees. The whole corpus rarely fits one prompt, so the system is built
// incrementally batch by batch.
const taxonomyBatchSize = 20

var taxonomyTemplate = llm.NewTemplate("extract.taxonomy", `Here is a list of categorisation information, each related to one document:
{context}

Define the most user-friendly and well balanced hierarchical classification system for these documents and define the most user-friendly tag system that groups these documents in another way than the hierarchical classification.

The tags should be different from the leaves of the hierarchical classification.
Do not repeat leaves in the hierarchical classification.
Avoid general categories like "General Information", prefer specific categories.

Return the hierarchical classification and the tags in a yaml format.
For each classification and tag, add in parenthesis the number of documents in the document set that belong to this classification/tag.
Do not add introduction, explanation or comments, only answer with the hierarchical classification and the tags.

Example of answer:

hierarchical_classification:
- Science (3)
  - Physics (2)
  - Chemistry (1)
- History (2)
  - Ancient History (1)
  - Modern History (1)
tags:
- Essay (1)
- Report (3)
- Poem (1)

Answer:
`)

var taxonomyUpdateTemplate = llm.NewTemplate("extract.taxonomy.update", `Here is a list of categorisation information each about a new document:
{context}

Here is the previous hierarchical classification system and the tags:
{previous}

If the new documents can be classified in the previous system, do not change the classification and tags system and answer with the previous one.

If the new documents cannot be classified in the previous system, update the classification and tags system to include the new documents.

The hierarchical classification system should stay balanced and well spread.
The tag system should be different from the leaves of the hierarchical classification.
Do not repeat leaves in the hierarchical classification.
Avoid general categories like "General Information", prefer specific categories.

Return the hierarchical classification and the tags in a yaml format.
For each classification and tag, add in parenthesis the number of documents in the document set that belong to this classification/tag.
Do not add introduction, explanation or comments, only answer with the hierarchical classification and the tags.

Answer:
`)

var assignTemplate = llm.NewTemplate("extract.assign", `Here is a list of categorisation information related to a document:
{context}

Here is a classification system and tag system in yaml format that can be used to classify this document:
{tree}

Assign the most relevant location in the classification and the most relevant tags to the document. Do not assign to a classification branch that is not a leaf of the classification. Return the location in the classification and the tags in yaml format. Do not add explanation or comments.

Example of answer:
hierarchical_classification:
- Science - Physics
tags:
- Essay
- 2022
- Draft

Answer:
`)

var parenPattern = regexp.MustCompile(`\([^)]*\)`)

// TaxonomyExtractor synthesizes a classification system over a corpus and
// assigns every document a location and tags within it.
type TaxonomyExtractor struct {
	completer  llm.Completer
	predefined string
	workers    int
}

// NewTaxonomyExtractor creates an extractor with DefaultWorkers.
func NewTaxonomyExtractor(completer llm.Completer) *TaxonomyExtractor {
	return &TaxonomyExtractor{completer: completer, workers: DefaultWorkers}
}

// WithWorkers bounds concurrent assignment calls.
func (e *TaxonomyExtractor) WithWorkers(workers int) *TaxonomyExtractor {
	if workers > 0 {
		e.workers = workers
	}
	return e
}

// WithPredefinedTree skips synthesis and classifies against the given
// system instead.
func (e *TaxonomyExtractor) WithPredefinedTree(tree string) *TaxonomyExtractor {
	e.predefined = tree
	return e
}

// Extract synthesizes the classification system from the nodes' extracted
// information and writes each node's assignment into its metadata. Returns
// the cleaned classification system.
func (e *TaxonomyExtractor) Extract(ctx context.Context, nodes []*node.Node) (string, error) {
	tree, err := e.ExtractTree(ctx, nodes)
	if err != nil {
		return "", err
	}
	tree = CleanTree(tree)
	tree = FillIntermediateBranches(tree)

	if err := e.Assign(ctx, nodes, tree); err != nil {
		return "", err
	}
	return tree, nil
}

// ExtractTree builds the raw classification system, batch by batch: the
// first batch proposes a system, each following batch extends it only when
// its documents do not fit.
func (e *TaxonomyExtractor) ExtractTree(ctx context.Context, nodes []*node.Node) (string, error) {
	if e.predefined != "" {
		return e.predefined, nil
	}

	tree := ""
	for start := 0; start < len(nodes); start += taxonomyBatchSize {
		end := start + taxonomyBatchSize
		if end > len(nodes) {
			end = len(nodes)
		}

		var info strings.Builder
		for _, n := range nodes[start:end] {
			info.WriteString(n.MetadataString(MetaInfo))
			info.WriteString("\n\n")
		}

		var answer string
		var err error
		if tree == "" {
			answer, err = llm.Predict(ctx, e.completer, taxonomyTemplate, map[string]string{
				"context": info.String(),
			})
		} else {
			answer, err = llm.Predict(ctx, e.completer, taxonomyUpdateTemplate, map[string]string{
				"context":  info.String(),
				"previous": tree,
			})
		}
		if err != nil {
			return "", fmt.Errorf("extract taxonomy for batch at %d: %w", start, err)
		}
		tree = strings.TrimSpace(answer)
	}
	return tree, nil
}

// Assign writes each node's classification assignment into its metadata.
func (e *TaxonomyExtractor) Assign(ctx context.Context, nodes []*node.Node, tree string) error {
	return runJobs(ctx, e.workers, len(nodes), func(ctx context.Context, i int) error {
		n := nodes[i]
		answer, err := llm.Predict(ctx, e.completer, assignTemplate, map[string]string{
			"context": n.MetadataString(MetaInfo),
			"tree":    tree,
		})
		if err != nil {
			return fmt.Errorf("assign classification for node %s: %w", n.ID, err)
		}
		n.SetMetadata(classify.MetaLocationAndTags, strings.TrimSpace(answer))
		n.ExcludeFromLLM(classify.MetaLocationAndTags)
		n.ExcludeFromEmbedding(classify.MetaLocationAndTags)
		return nil
	})
}

// CleanTree strips the per-entry document counts the synthesis prompt asks
// for, leaving bare category names.
func CleanTree(tree string) string {
	return parenPattern.ReplaceAllString(tree, "")
}

// FillIntermediateBranches appends an "Other" leaf to every line that is a
// prefix of another line, so documents assigned to an intermediate branch
// still land on a leaf.
func FillIntermediateBranches(tree string) string {
	lines := strings.Split(tree, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		prefixOfAnother := false
		for j, other := range lines {
			if i != j && line != "" && strings.HasPrefix(other, line) {
				prefixOfAnother = true
				break
			}
		}
		if prefixOfAnother {
			out[i] = line + classify.PathSeparator + "Other"
		} else {
			out[i] = line
		}
	}
	return strings.Join(out, "\n")
}
