package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/cascade"
	"github.com/magicshelf/shelf/classify"
	"github.com/magicshelf/shelf/extract"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
	"github.com/magicshelf/shelf/vector"
)

func (p *Pipeline) newSummarizer() *cascade.Summarizer {
	return cascade.NewSummarizer(p.completer, p.logger).
		WithWindow(p.config.Window).
		WithMaxChunks(p.config.MaxChunks).
		WithWorkers(p.config.Workers)
}

// ingest loads every .txt and .md file of the input directory as one
// document node.
func (p *Pipeline) ingest(ctx context.Context, r *run) error {
	if err := os.MkdirAll(p.config.RunDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	entries, err := os.ReadDir(p.config.InputDir)
	if err != nil {
		return fmt.Errorf("read input dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".txt" && ext != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.config.InputDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read document %s: %w", entry.Name(), err)
		}
		doc := node.New(string(data))
		doc.SetMetadata("file_name", entry.Name())
		doc.SetMetadata("title", strings.TrimSuffix(entry.Name(), ext))
		r.docs = append(r.docs, doc)
	}

	if len(r.docs) == 0 {
		return shelf.NewValidationError("Pipeline.ingest",
			fmt.Errorf("%w: no documents in %s", shelf.ErrEmptyInput, p.config.InputDir))
	}

	p.logger.Info("ingested documents", "count", len(r.docs))
	return p.saveNodes(documentsFile, r.docs)
}

// summarize builds one summary node per document, linked to its source.
func (p *Pipeline) summarize(ctx context.Context, r *run) error {
	summarizer := p.newSummarizer()
	for _, doc := range r.docs {
		result, err := summarizer.Synthesize(ctx, DocumentSummaryQuery, node.Wrap([]*node.Node{doc}))
		if err != nil {
			return fmt.Errorf("summarize document %s: %w", doc.MetadataString("file_name"), err)
		}

		summary := result.Root()
		summary.SetRelated(node.RelSource, doc.ID)
		summary.SetMetadata("title", doc.MetadataString("title"))
		summary.SetMetadata("file_name", doc.MetadataString("file_name"))
		r.summaries = append(r.summaries, summary)
	}
	return p.saveNodes(summariesFile, r.summaries)
}

// embedStage indexes the summaries for similarity search.
func (p *Pipeline) embedStage(ctx context.Context, r *run) error {
	r.index = vector.NewIndex()
	if err := r.index.Build(ctx, p.embedder, r.summaries); err != nil {
		return err
	}
	return r.index.Save(p.snapshotPath(indexFile))
}

// extractInfo annotates each summary with classification information.
func (p *Pipeline) extractInfo(ctx context.Context, r *run) error {
	return extract.NewInfoExtractor(p.completer).
		WithWorkers(p.config.Workers).
		Extract(ctx, r.summaries)
}

// classifyStage invents the classification system, assigns every summary a
// place in it, and files the summaries into a fresh store.
func (p *Pipeline) classifyStage(ctx context.Context, r *run) error {
	_, err := extract.NewTaxonomyExtractor(p.completer).
		WithWorkers(p.config.Workers).
		Extract(ctx, r.summaries)
	if err != nil {
		return err
	}

	index := classify.NewIndex(
		classify.NewStore(p.snapshotPath(SnapshotClassified), p.logger),
		r.summaries, p.logger)
	r.store = index.Store()
	return r.store.Persist()
}

// extractTypes discovers a raw document type per summary.
func (p *Pipeline) extractTypes(ctx context.Context, r *run) error {
	return extract.NewTypeExtractor(p.completer).
		WithWorkers(p.config.Workers).
		Extract(ctx, r.summaries)
}

// regroupTypes merges near-duplicate types and generates one summary
// prompt per surviving type.
func (p *Pipeline) regroupTypes(ctx context.Context, r *run) error {
	seen := make(map[string]struct{})
	var rawTypes []string
	for _, summary := range r.summaries {
		t := summary.MetadataString(extract.MetaType)
		if _, ok := seen[t]; !ok && t != "" {
			seen[t] = struct{}{}
			rawTypes = append(rawTypes, t)
		}
	}
	sort.Strings(rawTypes)

	extractor := extract.NewTypeExtractor(p.completer).WithWorkers(p.config.Workers)
	regrouped, err := extractor.Regroup(ctx, rawTypes)
	if err != nil {
		return err
	}
	extract.ReassignTypes(r.summaries, regrouped.Mapping)
	p.logger.Info("regrouped document types", "raw", len(rawTypes), "cleaned", len(regrouped.CleanedTypes))

	r.store.SetTypes(regrouped.CleanedTypes)
	for _, docType := range regrouped.CleanedTypes {
		prompt, err := extractor.GeneratePrompt(ctx, docType)
		if err != nil {
			return err
		}
		r.store.SetTypePrompt(docType, prompt)
	}
	return r.store.PersistTo(p.snapshotPath(SnapshotTypes))
}

// typedSummaries regenerates each document summary with the prompt of its
// document type.
func (p *Pipeline) typedSummaries(ctx context.Context, r *run) error {
	docs := make(map[string]*node.Node, len(r.docs))
	for _, doc := range r.docs {
		docs[doc.ID] = doc
	}

	summarizer := p.newSummarizer()
	for _, summary := range r.summaries {
		prompt, ok := r.store.TypePrompt(summary.MetadataString(extract.MetaType))
		if !ok {
			continue
		}
		sourceID, ok := summary.Source()
		if !ok {
			continue
		}
		doc, ok := docs[sourceID]
		if !ok {
			continue
		}

		result, err := summarizer.Synthesize(ctx, prompt, node.Wrap([]*node.Node{doc}))
		if err != nil {
			return fmt.Errorf("typed summary for %s: %w", summary.ID, err)
		}
		if err := r.store.UpdateText(summary.ID, result.Response); err != nil {
			return err
		}
	}
	return r.store.PersistTo(p.snapshotPath(SnapshotTypedSummaries))
}

// locationSummaries writes one summary node per tree location, built from
// the summaries filed there.
func (p *Pipeline) locationSummaries(ctx context.Context, r *run) error {
	summarizer := p.newSummarizer()
	var branchNodes []*node.Node
	for _, branch := range r.store.TreeSchema() {
		members := r.store.Nodes(r.store.NodesForLocation(branch))
		result, err := summarizer.Synthesize(ctx, DocumentSummaryQuery, node.Wrap(members))
		if err != nil {
			return fmt.Errorf("summarize location %q: %w", branch, err)
		}

		branchNode := node.New(result.Response)
		branchNode.SetMetadata(classify.MetaSummaryFor, branch)
		branchNodes = append(branchNodes, branchNode)
	}

	r.store.UpdateSummaryNodes(branchNodes)
	return r.store.PersistTo(p.snapshotPath(SnapshotBranchSummaries))
}

// pathSummaries builds, bottom-up, an introduction for every tree path
// that has no summary yet, including the root. A path is only summarized
// once all deeper paths under it are done, from the texts of its direct
// summary children.
func (p *Pipeline) pathSummaries(ctx context.Context, r *run) error {
	withSummary := make(map[string]string)
	texts := make(map[string]string)
	for _, branch := range r.store.TreeSchema() {
		if id, ok := r.store.SummaryIDForLocation(branch); ok {
			withSummary[branch] = id
			texts[id] = r.store.NodeText(id)
		}
	}

	var pending []string
	for _, path := range r.store.AllTreePaths(true) {
		if _, ok := withSummary[path]; !ok {
			pending = append(pending, path)
		}
	}

	var pathNodes []*node.Node
	for len(pending) > 0 {
		progressed := false

		var next []string
		for i, path := range pending {
			deeperPending := false
			for _, other := range pending {
				if other != path && strings.HasPrefix(other, path) {
					deeperPending = true
					break
				}
			}
			if deeperPending {
				next = append(next, path)
				continue
			}

			var children []string
			for child := range withSummary {
				if strings.HasPrefix(child, path) {
					children = append(children, child)
				}
			}
			sort.Strings(children)

			var parts []string
			for _, child := range children {
				parts = append(parts, texts[withSummary[child]])
			}

			response, err := llm.Predict(ctx, p.completer, cascade.DefaultTemplate, map[string]string{
				"context": strings.Join(parts, "\n\n"),
				"query":   CategoryIntroQuery,
			})
			if err != nil {
				return fmt.Errorf("summarize path %q: %w", path, err)
			}

			pathNode := node.New(response)
			pathNode.SetMetadata(classify.MetaSummaryFor, path)
			pathNodes = append(pathNodes, pathNode)

			// The new summary stands in for its children at the next level up.
			for _, child := range children {
				delete(withSummary, child)
			}
			withSummary[path] = pathNode.ID
			texts[pathNode.ID] = response

			progressed = true
			next = append(next, pending[i+1:]...)
			break
		}
		pending = next

		if !progressed {
			return shelf.NewInternalError("Pipeline.pathSummaries",
				fmt.Errorf("no progress with %d paths pending", len(pending)))
		}
	}

	r.store.UpdatePathSummaryNodes(pathNodes)
	return r.store.PersistTo(p.snapshotPath(SnapshotPathSummaries))
}

// linkSimilar records, per summary, its most similar other summaries from
// the vector index.
func (p *Pipeline) linkSimilar(ctx context.Context, r *run) error {
	for _, summary := range r.summaries {
		vec, ok := r.index.Vector(summary.ID)
		if !ok {
			continue
		}

		results := r.index.Search(vec, p.config.SimilarityTopK+1)
		var similar []string
		for _, res := range results {
			if res.Node.ID == summary.ID {
				continue
			}
			if len(similar) >= p.config.SimilarityTopK {
				break
			}
			similar = append(similar, res.Node.ID)
		}

		summary.SetMetadata(classify.MetaSimilarIDs, similar)
		summary.ExcludeFromEmbedding(classify.MetaSimilarIDs)
		summary.ExcludeFromLLM(classify.MetaSimilarIDs)
	}
	return r.store.PersistTo(p.snapshotPath(SnapshotFinal))
}

func (p *Pipeline) saveNodes(name string, nodes []*node.Node) error {
	collection := node.NewCollection()
	collection.Add(nodes...)
	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(p.snapshotPath(name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
