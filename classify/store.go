package classify

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/node"
)

// Store is the classification index store. It files nodes under tree
// locations and tags, and keeps the derived views (sorted schema, sorted
// tag vocabulary, summaries) consistent with every mutation.
//
// Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	// tree maps a location path to the IDs of nodes filed there.
	tree map[string][]string

	// treeSchema is the sorted list of location paths, recomputed on
	// every tree mutation.
	treeSchema []string

	// treeSummary maps a location path to its summary node ID.
	treeSummary map[string]string

	// treePathSummary maps a path prefix (including "" for the root) to
	// its bottom-up path summary node ID.
	treePathSummary map[string]string

	// tags maps a tag to the IDs of nodes carrying it.
	tags map[string][]string

	// tagsList is the sorted unique tag vocabulary, recomputed on every
	// tag mutation.
	tagsList []string

	// types is the list of document types discovered for this corpus.
	types []string

	// typesPrompt maps a document type to its summarization prompt.
	typesPrompt map[string]string

	nodes       *node.Collection
	persistPath string
	logger      *slog.Logger
}

// NewStore creates an empty store. persistPath may be empty, in which case
// Persist is a no-op.
func NewStore(persistPath string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		tree:            make(map[string][]string),
		treeSummary:     make(map[string]string),
		treePathSummary: make(map[string]string),
		tags:            make(map[string][]string),
		typesPrompt:     make(map[string]string),
		nodes:           node.NewCollection(),
		persistPath:     persistPath,
		logger:          logger,
	}
}

// Insert files a node under the tree location and tags recorded in its
// classification metadata. Nodes whose metadata is missing or unparsable
// are filed under the unknown location with the unknown tag.
func (s *Store) Insert(n *node.Node) {
	location := []string{Unknown}
	tags := []string{Unknown}

	raw := n.MetadataString(MetaLocationAndTags)
	if raw == "" {
		s.logger.Error("node has no classification metadata", "node_id", n.ID)
	} else if parsed, err := parseClassification(raw, s.logger); err != nil {
		s.logger.Error("cannot parse classification metadata", "node_id", n.ID, "error", err)
	} else {
		location = parsed.Location
		tags = parsed.Tags
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locationPath := strings.Join(location, PathSeparator)
	s.tree[locationPath] = append(s.tree[locationPath], n.ID)
	s.treeSchema = sortedKeys(s.tree)

	for _, tag := range tags {
		s.tags[tag] = append(s.tags[tag], n.ID)
	}
	s.tagsList = sortedKeys(s.tags)

	n.SetMetadata(MetaTreeLocation, location)
	n.SetMetadata(MetaTags, tags)
	s.nodes.Add(n)
}

// UpdateSummaryNodes registers location summary nodes. Each node must carry
// the location it summarizes in its metadata.
func (s *Store) UpdateSummaryNodes(nodes []*node.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.treeSummary[n.MetadataString(MetaSummaryFor)] = n.ID
		s.nodes.Add(n)
	}
}

// UpdatePathSummaryNodes registers path summary nodes, keyed the same way
// as UpdateSummaryNodes. The root path summary uses the empty location.
func (s *Store) UpdatePathSummaryNodes(nodes []*node.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.treePathSummary[n.MetadataString(MetaSummaryFor)] = n.ID
		s.nodes.Add(n)
	}
}

// UpdateText replaces the text of a stored node.
func (s *Store) UpdateText(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes.Get(id)
	if !ok {
		return shelf.NewNotFoundError("Store.UpdateText",
			fmt.Errorf("%w: node %s", shelf.ErrNodeNotFound, id))
	}
	n.Text = text
	return nil
}

// Node returns the stored node with the given ID.
func (s *Store) Node(id string) (*node.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.Get(id)
}

// Nodes resolves IDs to stored nodes, skipping unknown IDs.
func (s *Store) Nodes(ids []string) []*node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.Resolve(ids)
}

// AllNodes returns every stored node in insertion order.
func (s *Store) AllNodes() []*node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes.All()
}

// NodeText returns the text of a stored node, or "" when absent.
func (s *Store) NodeText(id string) string {
	if n, ok := s.Node(id); ok {
		return n.Text
	}
	return ""
}

// TreeSchema returns the sorted location paths.
func (s *Store) TreeSchema() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.treeSchema...)
}

// Tags returns the sorted tag vocabulary.
func (s *Store) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tagsList...)
}

// NodesForLocation returns the IDs filed at exactly the given location.
func (s *Store) NodesForLocation(location string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tree[location]...)
}

// NodesForTag returns the IDs carrying the given tag.
func (s *Store) NodesForTag(tag string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tags[tag]...)
}

// SummaryIDForLocation returns the summary node ID for a location path,
// falling back to the path summaries. "root" resolves to the root path
// summary.
func (s *Store) SummaryIDForLocation(location string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.treeSummary[location]; ok {
		return id, true
	}
	if id, ok := s.treePathSummary[location]; ok {
		return id, true
	}
	if location == "root" {
		id, ok := s.treePathSummary[""]
		return id, ok
	}
	return "", false
}

// PathSummaryID returns the path summary node ID for a path prefix,
// falling back to the location summaries.
func (s *Store) PathSummaryID(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.treePathSummary[path]; ok {
		return id, true
	}
	id, ok := s.treeSummary[path]
	return id, ok
}

// SimilarNodeIDs returns the IDs of nodes recorded as similar to the node.
func (s *Store) SimilarNodeIDs(id string) []string {
	if n, ok := s.Node(id); ok {
		return n.MetadataStrings(MetaSimilarIDs)
	}
	return nil
}

// NodeFilename returns the source file name recorded on a node.
func (s *Store) NodeFilename(id string) string {
	if n, ok := s.Node(id); ok {
		return n.MetadataString("file_name")
	}
	return ""
}

// NodeURL returns the source URL recorded on a node.
func (s *Store) NodeURL(id string) string {
	if n, ok := s.Node(id); ok {
		return n.MetadataString("url")
	}
	return ""
}

// Types returns the discovered document types.
func (s *Store) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.types...)
}

// SetTypes records the discovered document types.
func (s *Store) SetTypes(types []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append([]string(nil), types...)
}

// TypePrompt returns the summarization prompt for a document type.
func (s *Store) TypePrompt(docType string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prompt, ok := s.typesPrompt[docType]
	return prompt, ok
}

// SetTypePrompt records the summarization prompt for a document type.
func (s *Store) SetTypePrompt(docType, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typesPrompt[docType] = prompt
}

// AllTreePaths returns every prefix of every location path, deduplicated
// and sorted. When withRoot is true the empty root path is prepended.
func (s *Store) AllTreePaths(withRoot bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for branch := range s.tree {
		parts := strings.Split(branch, PathSeparator)
		for i := range parts {
			seen[strings.Join(parts[:i+1], PathSeparator)] = struct{}{}
		}
	}

	paths := make([]string, 0, len(seen)+1)
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	if withRoot {
		paths = append([]string{""}, paths...)
	}
	return paths
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
