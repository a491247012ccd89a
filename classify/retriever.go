package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/node"
)

var retrieveTemplate = llm.NewTemplate("classify.retrieve", `Here is a hierarchical classification system:

{tree_schema}

Here is a classification tags system:

{tags_list}

Here is a query:
{query_str}

Define where to retrieve information to answer the query in the hierarchical classification and what are the relevant tags.
Only answer with one of the provided hierarchical classification locations and tags.
If multiple locations or tags are possible, assign a score between 0 to 100 to each of them.
Answer in a yaml format.
Do not add explanation or comments. Only answer with hierarchical classification location and tags.

Example of answer:
hierarchical_classification_locations:
- xxx - xxx, score:80
- xxx - xxx, score:60
tags:
- xxx, score:90
- xxx, score:80

Answer:
`)

// Retriever answers queries by asking the model to place them in the
// store's classification tree and tag vocabulary, then returning the
// nodes filed at the intersection of the chosen locations and tags.
type Retriever struct {
	store     *Store
	completer llm.Completer
	topK      int
	logger    *slog.Logger
}

// NewRetriever creates a classification retriever over the store.
func NewRetriever(store *Store, completer llm.Completer, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, completer: completer, topK: 1, logger: logger}
}

// WithTopK sets how many locations and how many tags are kept from the
// model's answer. The default is 1.
func (r *Retriever) WithTopK(topK int) *Retriever {
	if topK > 0 {
		r.topK = topK
	}
	return r
}

// scoredLabel is one parsed answer line: a location or tag with its score.
type scoredLabel struct {
	Label string
	Score int
}

// locationsAndTags is the parsed model answer. Both sections must be
// present and non-empty for the answer to be usable.
type locationsAndTags struct {
	Locations []scoredLabel
	Tags      []scoredLabel
}

// parseLocationsAndTags parses the two-section answer format:
//
//	hierarchical_classification_locations:
//	- Business, score:80
//	tags:
//	- finance, score:90
//
// Returns nil without error when the answer is empty or either section is
// missing; the caller decides how hard to fail.
func parseLocationsAndTags(input string) (*locationsAndTags, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	result := &locationsAndTags{}
	section := ""
	for _, line := range strings.Split(strings.TrimSpace(input), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "hierarchical_classification_locations:"):
			section = "locations"
		case strings.HasPrefix(line, "tags:"):
			section = "tags"
		case line != "" && section != "":
			label, score, err := parseScoredLine(line)
			if err != nil {
				return nil, err
			}
			if section == "locations" {
				result.Locations = append(result.Locations, scoredLabel{Label: label, Score: score})
			} else {
				result.Tags = append(result.Tags, scoredLabel{Label: label, Score: score})
			}
		}
	}

	if len(result.Locations) == 0 || len(result.Tags) == 0 {
		return nil, nil
	}
	return result, nil
}

func parseScoredLine(line string) (string, int, error) {
	label, scoreStr, found := strings.Cut(line, ", score:")
	if !found {
		return "", 0, shelf.NewParseError("classify.parseScoredLine",
			fmt.Errorf("%w: line %q has no score", shelf.ErrMalformedResponse, line))
	}
	score, err := strconv.Atoi(strings.TrimSpace(scoreStr))
	if err != nil {
		return "", 0, shelf.NewParseError("classify.parseScoredLine",
			fmt.Errorf("%w: line %q has a non-integer score", shelf.ErrMalformedResponse, line))
	}
	return strings.Trim(label, "- "), score, nil
}

// treeDescription renders every location with its summary, so the model
// chooses from described categories rather than bare path strings.
func (r *Retriever) treeDescription() string {
	var b strings.Builder
	for _, location := range r.store.TreeSchema() {
		b.WriteString(location)
		b.WriteString("\n")
		if id, ok := r.store.SummaryIDForLocation(location); ok {
			b.WriteString("Location summary: ")
			b.WriteString(r.store.NodeText(id))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Retrieve implements retrieve.Retriever. Answer locations and tags are
// validated against the store, partial locations are expanded to every
// full location sharing the prefix, and only nodes matched by BOTH a
// location and a tag are returned. Scores carry the model's location
// confidence scaled to [0, 1].
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]node.Scored, error) {
	var tagLines strings.Builder
	for _, tag := range r.store.Tags() {
		tagLines.WriteString("- ")
		tagLines.WriteString(tag)
		tagLines.WriteString("\n")
	}

	answer, err := llm.Predict(ctx, r.completer, retrieveTemplate, map[string]string{
		"tree_schema": r.treeDescription(),
		"tags_list":   tagLines.String(),
		"query_str":   query,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve locations and tags: %w", err)
	}

	// An unusable answer yields no classification results instead of
	// failing the query; the embedding retriever still contributes.
	parsed, err := parseLocationsAndTags(answer)
	if err != nil {
		r.logger.Error("discarding unparseable retriever answer", "error", err)
		return nil, nil
	}
	if parsed == nil {
		r.logger.Error("retriever answer is missing a locations or tags section", "answer", answer)
		return nil, nil
	}

	topLocations := topByScore(parsed.Locations, r.topK)
	topTags := topByScore(parsed.Tags, r.topK)

	schema := r.store.TreeSchema()
	valid := topLocations[:0]
	for _, l := range topLocations {
		if contains(schema, l.Label) {
			valid = append(valid, l)
		} else {
			r.logger.Error("retriever answered with an unknown location", "location", l.Label)
		}
	}
	topLocations = valid

	vocabulary := r.store.Tags()
	validTags := topTags[:0]
	for _, t := range topTags {
		if contains(vocabulary, t.Label) {
			validTags = append(validTags, t)
		} else {
			r.logger.Error("retriever answered with an unknown tag", "tag", t.Label)
		}
	}
	topTags = validTags

	// A partial location stands for every full location under it.
	var expanded []scoredLabel
	for _, l := range topLocations {
		for _, full := range schema {
			if strings.HasPrefix(full, l.Label) {
				expanded = append(expanded, scoredLabel{Label: full, Score: l.Score})
			}
		}
	}

	locationScore := make(map[string]int)
	var locationIDs []string
	for _, l := range expanded {
		for _, id := range r.store.NodesForLocation(l.Label) {
			if l.Score > locationScore[id] {
				locationScore[id] = l.Score
			}
			locationIDs = append(locationIDs, id)
		}
	}

	tagged := make(map[string]struct{})
	for _, t := range topTags {
		for _, id := range r.store.NodesForTag(t.Label) {
			tagged[id] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var results []node.Scored
	for _, id := range locationIDs {
		if _, ok := tagged[id]; !ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if n, ok := r.store.Node(id); ok {
			results = append(results, node.WithScore(n, float64(locationScore[id])/100))
		}
	}
	return results, nil
}

func topByScore(labels []scoredLabel, k int) []scoredLabel {
	sorted := append([]scoredLabel(nil), labels...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
