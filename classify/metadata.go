package classify

import (
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata keys written onto classified nodes.
const (
	// MetaLocationAndTags holds the raw YAML classification produced by
	// the extraction model.
	MetaLocationAndTags = "classification_location_and_tags"

	// MetaTreeLocation holds the parsed location path as a string list.
	MetaTreeLocation = "classification_tree_location"

	// MetaTags holds the parsed tag list.
	MetaTags = "classification_tags"

	// MetaSummaryFor marks a summary node with the location it summarizes.
	MetaSummaryFor = "summary_for_tree_location"

	// MetaSimilarIDs holds IDs of semantically similar nodes.
	MetaSimilarIDs = "similar_ids"
)

// PathSeparator joins category names into a tree location path.
const PathSeparator = " - "

// Unknown is the fallback category and tag for nodes whose classification
// metadata is missing or unparsable. Such nodes stay findable instead of
// silently vanishing from the index.
const Unknown = "unknown"

// classification is the parsed form of the extraction model's YAML answer.
type classification struct {
	Location []string
	Tags     []string
}

type rawClassification struct {
	Hierarchical []string `yaml:"hierarchical_classification"`
	Tags         []any    `yaml:"tags"`
}

// parseClassification parses the YAML block the extraction model produces:
//
//	hierarchical_classification:
//	- Computer Science - Artificial Intelligence
//	tags:
//	- machine learning
//
// The hierarchical list is expected to hold exactly one path; extra entries
// are logged and the first is used. An empty tag list is a parse failure,
// since a tagless node can never satisfy the retriever's location and tag
// intersection. Tags are stringified since models occasionally emit bare
// numbers.
func parseClassification(raw string, logger *slog.Logger) (*classification, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var parsed rawClassification
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse classification yaml: %w", err)
	}
	if len(parsed.Hierarchical) == 0 {
		return nil, fmt.Errorf("classification has no hierarchical_classification list")
	}
	if len(parsed.Hierarchical) > 1 {
		logger.Error("classification has multiple hierarchical_classification entries, using the first",
			"entries", len(parsed.Hierarchical))
	}
	if len(parsed.Tags) == 0 {
		return nil, fmt.Errorf("classification has no tags list")
	}

	tags := make([]string, len(parsed.Tags))
	for i, tag := range parsed.Tags {
		tags[i] = fmt.Sprint(tag)
	}

	return &classification{
		Location: strings.Split(parsed.Hierarchical[0], PathSeparator),
		Tags:     tags,
	}, nil
}
