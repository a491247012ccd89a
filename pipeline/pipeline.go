package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/magicshelf/shelf/classify"
	"github.com/magicshelf/shelf/embed"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
	"github.com/magicshelf/shelf/vector"
)

// Versioned store snapshots written along the run. Each stage that mutates
// the classification store persists the next version, so a run can be
// inspected or resumed at every point.
const (
	SnapshotClassified       = "store_0.json"
	SnapshotTypes            = "store_1.json"
	SnapshotTypedSummaries   = "store_2.json"
	SnapshotBranchSummaries  = "store_3.json"
	SnapshotPathSummaries    = "store_4.json"
	SnapshotFinal            = "store_5.json"
	documentsFile            = "documents.json"
	summariesFile            = "summaries.json"
	indexFile                = "index.json"
)

// DocumentSummaryQuery drives the generic per-document summary.
const DocumentSummaryQuery = "Create a concise and comprehensive summary with a title, in strict CommonMark format. " +
	"Rely strictly on the provided text, without including external information. " +
	"Do not introduce the summary, just output the summary. " +
	"Summary with title:"

// CategoryIntroQuery drives category and path introductions.
const CategoryIntroQuery = "Create an introduction in strict CommonMark format for all the provided content. " +
	"Do not introduce this introduction, just output the text."

// Config holds the knobs of one pipeline run.
type Config struct {
	// InputDir holds the documents to ingest (.txt and .md files).
	InputDir string

	// RunDir receives every artifact of the run.
	RunDir string

	// SimilarityTopK is how many similar documents to link per document.
	SimilarityTopK int

	// MaxChunks caps the chunks each summarization level samples.
	// Zero uses everything.
	MaxChunks int

	// Workers bounds concurrent model calls in extraction stages.
	Workers int

	// Window is the prompt packing policy for summarization.
	Window llm.Window
}

func (c Config) withDefaults() Config {
	if c.SimilarityTopK == 0 {
		c.SimilarityTopK = 3
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Window.ContextSize == 0 {
		c.Window = llm.DefaultWindow()
	}
	return c
}

// Pipeline builds a shelf run from raw documents.
type Pipeline struct {
	config    Config
	completer llm.Completer
	embedder  embed.Embedder
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a pipeline. The completer and embedder are used as given;
// wrap them with budget guards and caches before constructing the
// pipeline.
func New(config Config, completer llm.Completer, embedder embed.Embedder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		config:    config.withDefaults(),
		completer: completer,
		embedder:  embedder,
		logger:    logger,
		tracer:    otel.Tracer("github.com/magicshelf/shelf/pipeline"),
	}
}

// run is the mutable state threaded through the stages.
type run struct {
	docs      []*node.Node
	summaries []*node.Node
	index     *vector.Index
	store     *classify.Store
}

// stage is one named pipeline step.
type stage struct {
	name string
	fn   func(ctx context.Context, r *run) error
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{"ingest", p.ingest},
		{"summarize", p.summarize},
		{"embed", p.embedStage},
		{"info", p.extractInfo},
		{"classify", p.classifyStage},
		{"types", p.extractTypes},
		{"regroup", p.regroupTypes},
		{"typed_summaries", p.typedSummaries},
		{"location_summaries", p.locationSummaries},
		{"path_summaries", p.pathSummaries},
		{"links", p.linkSimilar},
	}
}

// StageNames lists the pipeline stages in execution order.
func (p *Pipeline) StageNames() []string {
	stages := p.stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	return names
}

// Run executes every stage in order, tracking progress in status. Budget
// and quota errors abort the run like any other stage failure; the status
// record keeps the error for the API.
func (p *Pipeline) Run(ctx context.Context, status *Status) error {
	if err := os.MkdirAll(p.config.RunDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	status.start()
	_ = status.Save(p.config.RunDir)

	r := &run{}
	for _, s := range p.stages() {
		status.enterStage(s.name)
		_ = status.Save(p.config.RunDir)

		stageCtx, span := p.tracer.Start(ctx, "pipeline."+s.name,
			trace.WithAttributes(attribute.String("run_id", status.RunID)))
		err := s.fn(stageCtx, r)
		if err != nil {
			span.RecordError(err)
		}
		span.End()

		if err != nil {
			wrapped := fmt.Errorf("stage %s: %w", s.name, err)
			status.fail(wrapped)
			_ = status.Save(p.config.RunDir)
			return wrapped
		}

		p.logger.Info("pipeline stage done", "stage", s.name, "run_id", status.RunID)
		status.stageDone(s.name)
		_ = status.Save(p.config.RunDir)
	}

	status.complete()
	return status.Save(p.config.RunDir)
}

func (p *Pipeline) snapshotPath(name string) string {
	return filepath.Join(p.config.RunDir, name)
}
