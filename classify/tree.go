package classify

import (
	"sort"
	"strings"
)

// Category is one node of the browsable category tree.
type Category struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Introduction  string      `json:"introduction"`
	Subcategories []*Category `json:"subcategories"`
	Documents     []Document  `json:"documents"`
}

// Document is a classified document as exposed in the category tree.
type Document struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	Tags             []string `json:"tags"`
	RelatedDocuments []string `json:"relatedDocuments"`
	SourceNodeID     string   `json:"source_node_id"`
}

// CategoryTree renders the whole index as a browsable tree under a
// synthetic "root" category. The root exists even for an empty store.
func (s *Store) CategoryTree() *Category {
	return s.subCategoryTree("root", "root")
}

func (s *Store) subCategoryTree(name, fullPath string) *Category {
	storePath := ""
	if fullPath != "root" {
		storePath = strings.TrimPrefix(fullPath, "root"+PathSeparator)
	}
	prefix := ""
	if storePath != "" {
		prefix = storePath + PathSeparator
	}

	seen := make(map[string]struct{})
	var childNames []string
	for _, branch := range s.TreeSchema() {
		if !strings.HasPrefix(branch, prefix) || branch == storePath {
			continue
		}
		child := strings.Split(branch[len(prefix):], PathSeparator)[0]
		if _, ok := seen[child]; !ok {
			seen[child] = struct{}{}
			childNames = append(childNames, child)
		}
	}

	subcategories := make([]*Category, 0, len(childNames))
	for _, child := range childNames {
		subcategories = append(subcategories, s.subCategoryTree(child, fullPath+PathSeparator+child))
	}
	sort.Slice(subcategories, func(i, j int) bool { return subcategories[i].ID < subcategories[j].ID })

	documents := make([]Document, 0)
	for _, n := range s.Nodes(s.NodesForLocation(storePath)) {
		source, _ := n.Source()
		documents = append(documents, Document{
			ID:               n.ID,
			Title:            n.MetadataString("title"),
			Summary:          n.Text,
			Tags:             n.MetadataStrings(MetaTags),
			RelatedDocuments: n.MetadataStrings(MetaSimilarIDs),
			SourceNodeID:     source,
		})
	}
	sort.Slice(documents, func(i, j int) bool { return documents[i].ID < documents[j].ID })

	introduction := ""
	if id, ok := s.PathSummaryID(storePath); ok {
		introduction = s.NodeText(id)
	}

	return &Category{
		ID:            fullPath,
		Name:          name,
		Introduction:  introduction,
		Subcategories: subcategories,
		Documents:     documents,
	}
}

// GraphNode is a digraph vertex with a stable identifier and a display
// label.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// GraphEdge is a directed digraph edge.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a digraph export for visualization frontends.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// TreeDigraph exports the classification tree as a digraph: the synthetic
// root, one vertex per path prefix, and one leaf vertex per filed node.
func (s *Store) TreeDigraph() Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := Graph{Nodes: []GraphNode{{ID: "root", Label: "root"}}}
	seenNodes := map[string]struct{}{"root": {}}
	seenEdges := make(map[GraphEdge]struct{})

	addNode := func(id, label string) {
		if _, ok := seenNodes[id]; !ok {
			seenNodes[id] = struct{}{}
			g.Nodes = append(g.Nodes, GraphNode{ID: id, Label: label})
		}
	}
	addEdge := func(from, to string) {
		e := GraphEdge{From: from, To: to}
		if _, ok := seenEdges[e]; !ok {
			seenEdges[e] = struct{}{}
			g.Edges = append(g.Edges, e)
		}
	}

	for _, branch := range s.treeSchema {
		parts := strings.Split(branch, PathSeparator)
		for i, part := range parts {
			id := strings.Join(parts[:i+1], PathSeparator)
			addNode(id, part)
			if i == 0 {
				addEdge("root", id)
			} else {
				addEdge(strings.Join(parts[:i], PathSeparator), id)
			}
		}
		for _, nodeID := range s.tree[branch] {
			addNode(nodeID, nodeID)
			addEdge(branch, nodeID)
		}
	}
	return g
}

// TagsDigraph exports the tag vocabulary as a digraph: one vertex per tag
// with edges to the nodes carrying it.
func (s *Store) TagsDigraph() Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var g Graph
	seenNodes := make(map[string]struct{})
	addNode := func(id string) {
		if _, ok := seenNodes[id]; !ok {
			seenNodes[id] = struct{}{}
			g.Nodes = append(g.Nodes, GraphNode{ID: id, Label: id})
		}
	}

	for _, tag := range s.tagsList {
		addNode(tag)
		for _, nodeID := range s.tags[tag] {
			addNode(nodeID)
			g.Edges = append(g.Edges, GraphEdge{From: tag, To: nodeID})
		}
	}
	return g
}
