package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicshelf/shelf/node"
)

func TestCategoryTree_EmptyStore(t *testing.T) {
	s := NewStore("", nil)

	tree := s.CategoryTree()
	assert.Equal(t, "root", tree.ID)
	assert.Equal(t, "root", tree.Name)
	assert.Equal(t, "", tree.Introduction)
	assert.Empty(t, tree.Subcategories)
	assert.Empty(t, tree.Documents)
}

func TestCategoryTree_RootSummaryOnly(t *testing.T) {
	s := NewStore("", nil)
	s.UpdatePathSummaryNodes([]*node.Node{summaryNode("", "root summary")})

	tree := s.CategoryTree()
	assert.Equal(t, "root summary", tree.Introduction)
	assert.Empty(t, tree.Subcategories)
}

func TestCategoryTree_SingleBranch(t *testing.T) {
	s := NewStore("", nil)

	doc := classifiedNode("# Chevron Company Profile", "Business", "energy")
	doc.SetMetadata("title", "Chevron Company Profile")
	doc.Relate(node.RelSource, "source-0")
	s.Insert(doc)

	s.UpdateSummaryNodes([]*node.Node{summaryNode("Business", "intro to business category")})
	s.UpdatePathSummaryNodes([]*node.Node{summaryNode("", "root summary")})

	tree := s.CategoryTree()
	assert.Equal(t, "root summary", tree.Introduction)
	assert.Empty(t, tree.Documents)

	require.Len(t, tree.Subcategories, 1)
	business := tree.Subcategories[0]
	assert.Equal(t, "root - Business", business.ID)
	assert.Equal(t, "Business", business.Name)
	assert.Equal(t, "intro to business category", business.Introduction)
	assert.Empty(t, business.Subcategories)

	require.Len(t, business.Documents, 1)
	got := business.Documents[0]
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "Chevron Company Profile", got.Title)
	assert.Equal(t, "# Chevron Company Profile", got.Summary)
	assert.Equal(t, []string{"energy"}, got.Tags)
	assert.Equal(t, "source-0", got.SourceNodeID)
}

func TestCategoryTree_IntermediateCategory(t *testing.T) {
	s := NewStore("", nil)

	s.Insert(classifiedNode("business doc", "Business", "finance"))
	aiDoc := classifiedNode("ai doc", "Computer Science - Artificial Intelligence", "ml")
	s.Insert(aiDoc)

	s.UpdateSummaryNodes([]*node.Node{
		summaryNode("Business", "business intro"),
		summaryNode("Computer Science - Artificial Intelligence", "ai intro"),
	})
	s.UpdatePathSummaryNodes([]*node.Node{
		summaryNode("Computer Science", "cs intro"),
		summaryNode("", "root summary"),
	})

	tree := s.CategoryTree()
	require.Len(t, tree.Subcategories, 2)

	business := tree.Subcategories[0]
	cs := tree.Subcategories[1]
	assert.Equal(t, "root - Business", business.ID)
	assert.Equal(t, "root - Computer Science", cs.ID)

	// "Computer Science" has no direct documents, only the AI subcategory.
	assert.Equal(t, "cs intro", cs.Introduction)
	assert.Empty(t, cs.Documents)
	require.Len(t, cs.Subcategories, 1)

	ai := cs.Subcategories[0]
	assert.Equal(t, "root - Computer Science - Artificial Intelligence", ai.ID)
	assert.Equal(t, "ai intro", ai.Introduction)
	require.Len(t, ai.Documents, 1)
	assert.Equal(t, aiDoc.ID, ai.Documents[0].ID)
}

func TestTreeDigraph(t *testing.T) {
	s := NewStore("", nil)
	docA := classifiedNode("a", "Computer Science - Artificial Intelligence", "t")
	docB := classifiedNode("b", "Business", "t")
	s.Insert(docA)
	s.Insert(docB)

	g := s.TreeDigraph()

	ids := make(map[string]string)
	for _, n := range g.Nodes {
		ids[n.ID] = n.Label
	}
	assert.Equal(t, "root", ids["root"])
	assert.Equal(t, "Business", ids["Business"])
	assert.Equal(t, "Computer Science", ids["Computer Science"])
	assert.Equal(t, "Artificial Intelligence", ids["Computer Science - Artificial Intelligence"])
	assert.Contains(t, ids, docA.ID)

	assert.Contains(t, g.Edges, GraphEdge{From: "root", To: "Business"})
	assert.Contains(t, g.Edges, GraphEdge{From: "root", To: "Computer Science"})
	assert.Contains(t, g.Edges, GraphEdge{From: "Computer Science", To: "Computer Science - Artificial Intelligence"})
	assert.Contains(t, g.Edges, GraphEdge{From: "Computer Science - Artificial Intelligence", To: docA.ID})
	assert.Contains(t, g.Edges, GraphEdge{From: "Business", To: docB.ID})
}

func TestTagsDigraph(t *testing.T) {
	s := NewStore("", nil)
	doc := classifiedNode("a", "Business", "finance", "energy")
	s.Insert(doc)

	g := s.TagsDigraph()
	assert.Len(t, g.Nodes, 3)
	assert.Contains(t, g.Edges, GraphEdge{From: "finance", To: doc.ID})
	assert.Contains(t, g.Edges, GraphEdge{From: "energy", To: doc.ID})
}
