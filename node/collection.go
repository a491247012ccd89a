package node

import "encoding/json"

// Collection is the flat arena of every node created during a run.
// Insertion order is preserved; lookups by id go through an index rather
// than a scan. Collection is not safe for concurrent mutation.
type Collection struct {
	nodes []*Node
	byID  map[string]*Node
}

// NewCollection creates an empty Collection.
func NewCollection() *Collection {
	return &Collection{byID: make(map[string]*Node)}
}

// Add appends nodes to the arena. A node whose id is already present
// replaces the indexed entry but keeps the original ordering slot, so the
// latest version wins on lookup.
func (c *Collection) Add(nodes ...*Node) {
	if c.byID == nil {
		c.byID = make(map[string]*Node)
	}
	for _, n := range nodes {
		if _, exists := c.byID[n.ID]; !exists {
			c.nodes = append(c.nodes, n)
		}
		c.byID[n.ID] = n
	}
}

// Get returns the node with the given id.
func (c *Collection) Get(id string) (*Node, bool) {
	n, ok := c.byID[id]
	return n, ok
}

// Resolve returns the nodes matching the given ids, skipping unknown ids.
func (c *Collection) Resolve(ids []string) []*Node {
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := c.byID[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// All returns every node in insertion order. The slice is shared; callers
// must not mutate it.
func (c *Collection) All() []*Node {
	return c.nodes
}

// Len returns the number of nodes in the arena.
func (c *Collection) Len() int {
	return len(c.nodes)
}

// MarshalJSON serializes the arena as a flat node list.
func (c *Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.nodes)
}

// UnmarshalJSON rebuilds the arena and its id index from a flat node list.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var nodes []*Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return err
	}
	c.nodes = nil
	c.byID = make(map[string]*Node, len(nodes))
	c.Add(nodes...)
	return nil
}
