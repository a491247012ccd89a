package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
)

// MetaSummaryChildren records, on a derived summary node, the IDs of the
// nodes it was summarized from.
const MetaSummaryChildren = "summary_children"

// DefaultTemplate is the summarization prompt used when none is provided.
var DefaultTemplate = llm.NewTemplate("cascade.summarize", `Context information from multiple sources is below.
---------------------
{context}
---------------------
Given the information from multiple sources and not prior knowledge, answer the query.
Query: {query}
Answer: `)

// Result is the outcome of one cascade reduction.
type Result struct {
	// Response is the final top-level summary.
	Response string

	// SourceNodes holds the final summary node first, followed by every
	// intermediate summary node produced on the way, newest level first.
	// The final node is the only one without a parent; each node's
	// children are recorded in its summary_children metadata, and nodes
	// of one level are chained with previous/next relationships.
	SourceNodes []node.Scored
}

// Root returns the final summary node.
func (r *Result) Root() *node.Node {
	if len(r.SourceNodes) == 0 {
		return nil
	}
	return r.SourceNodes[0].Node
}

// Summarizer reduces node sets level by level. Each level repacks the
// current texts into context-window-sized groups, summarizes each group
// with one model call, and recurses on the summaries until one remains.
type Summarizer struct {
	completer llm.Completer
	window    llm.Window
	template  *llm.Template
	maxChunks int
	workers   int
	rng       *rand.Rand
	logger    *slog.Logger
}

// NewSummarizer creates a summarizer with the default window and template.
func NewSummarizer(completer llm.Completer, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		completer: completer,
		window:    llm.DefaultWindow(),
		template:  DefaultTemplate,
		workers:   1,
		logger:    logger,
	}
}

// WithWindow replaces the context-window policy.
func (s *Summarizer) WithWindow(w llm.Window) *Summarizer {
	s.window = w
	return s
}

// WithTemplate replaces the summary template. The template must have
// context and query placeholders.
func (s *Summarizer) WithTemplate(tmpl *llm.Template) *Summarizer {
	s.template = tmpl
	return s
}

// WithMaxChunks caps how many input chunks each level samples, uniformly
// at random. Zero means all chunks are used.
func (s *Summarizer) WithMaxChunks(maxChunks int) *Summarizer {
	s.maxChunks = maxChunks
	return s
}

// WithWorkers sets how many group summaries of one level may run
// concurrently. The default is 1.
func (s *Summarizer) WithWorkers(workers int) *Summarizer {
	if workers > 0 {
		s.workers = workers
	}
	return s
}

// WithRand fixes the sampling source, making WithMaxChunks reproducible.
func (s *Summarizer) WithRand(rng *rand.Rand) *Summarizer {
	s.rng = rng
	return s
}

// Synthesize reduces the nodes to a single summary answering the query.
// An empty node set returns ErrEmptyInput without any model call.
func (s *Summarizer) Synthesize(ctx context.Context, query string, nodes []node.Scored) (*Result, error) {
	if len(nodes) == 0 {
		return nil, shelf.NewValidationError("Summarizer.Synthesize", shelf.ErrEmptyInput)
	}

	tmpl := s.template.Partial(map[string]string{"query": query})
	return s.reduce(ctx, tmpl, nodes, nil)
}

// reduce is one level of the cascade. accumulated carries the summary
// nodes of all previous levels; it is nil only at the top level.
func (s *Summarizer) reduce(ctx context.Context, tmpl *llm.Template, chunks []node.Scored, accumulated []node.Scored) (*Result, error) {
	sampled := s.sample(chunks)
	texts := make([]string, len(sampled))
	for i, c := range sampled {
		texts[i] = c.Node.Content(node.RenderForLLM)
	}

	groups := s.window.Repack(tmpl, texts)
	s.logger.Debug("repacked chunks", "in", len(texts), "out", len(groups))
	if len(groups) == 0 {
		return nil, shelf.NewValidationError("Summarizer.reduce", shelf.ErrEmptyInput)
	}

	// The top level summarizes original documents, which track their own
	// provenance; deeper levels record the previous level as children.
	var children []string
	if accumulated != nil {
		for _, c := range chunks {
			children = append(children, c.Node.ID)
		}
	}

	summaries := make([]*node.Node, len(groups))
	for i := range groups {
		n := node.New("")
		n.SetMetadata(MetaSummaryChildren, children)
		n.ExcludeFromEmbedding(MetaSummaryChildren)
		n.ExcludeFromLLM(MetaSummaryChildren)
		summaries[i] = n
	}

	if accumulated == nil {
		accumulated = []node.Scored{}
	} else {
		accumulated = append(accumulated, chunks...)
	}

	if len(groups) == 1 {
		response, err := llm.Predict(ctx, s.completer, tmpl, map[string]string{"context": groups[0]})
		if err != nil {
			return nil, fmt.Errorf("summarize final group: %w", err)
		}
		summaries[0].Text = response
		return &Result{
			Response:    response,
			SourceNodes: append(node.Wrap(summaries), accumulated...),
		}, nil
	}

	if err := s.summarizeGroups(ctx, tmpl, groups, summaries); err != nil {
		return nil, err
	}

	for i, n := range summaries {
		if i > 0 {
			n.SetRelated(node.RelPrevious, summaries[i-1].ID)
		}
		if i < len(summaries)-1 {
			n.SetRelated(node.RelNext, summaries[i+1].ID)
		}
	}

	return s.reduce(ctx, tmpl, node.Wrap(summaries), accumulated)
}

// summarizeGroups fills each summary node's text with the completion for
// its group, running at most s.workers completions at once.
func (s *Summarizer) summarizeGroups(ctx context.Context, tmpl *llm.Template, groups []string, summaries []*node.Node) error {
	if s.workers <= 1 {
		for i, group := range groups {
			response, err := llm.Predict(ctx, s.completer, tmpl, map[string]string{"context": group})
			if err != nil {
				return fmt.Errorf("summarize group %d: %w", i, err)
			}
			summaries[i].Text = response
		}
		return nil
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.workers)
	errs := make([]error, len(groups))

	for i, group := range groups {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, group string) {
			defer wg.Done()
			defer func() { <-sem }()
			response, err := llm.Predict(ctx, s.completer, tmpl, map[string]string{"context": group})
			if err != nil {
				errs[i] = fmt.Errorf("summarize group %d: %w", i, err)
				return
			}
			summaries[i].Text = response
		}(i, group)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// sample returns up to maxChunks chunks drawn without replacement.
func (s *Summarizer) sample(chunks []node.Scored) []node.Scored {
	if s.maxChunks <= 0 || len(chunks) <= s.maxChunks {
		return chunks
	}
	var perm []int
	if s.rng != nil {
		perm = s.rng.Perm(len(chunks))
	} else {
		perm = rand.Perm(len(chunks))
	}
	sampled := make([]node.Scored, 0, s.maxChunks)
	for _, idx := range perm[:s.maxChunks] {
		sampled = append(sampled, chunks[idx])
	}
	return sampled
}
