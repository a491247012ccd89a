// Package node defines the content-node model shared by every shelf component.
//
// A Node is the universal content unit: source documents, document chunks,
// intermediate summaries and taxonomy summaries are all nodes. Nodes carry a
// stable id, a mutable text payload, a metadata map, and typed relationship
// links to other nodes (provenance and sibling order). Relationships store
// node ids, never pointers; resolution happens on demand against a Collection.
//
// A Collection is the flat arena holding every node of a run. It is the only
// authoritative node storage and provides id-indexed lookup.
package node
