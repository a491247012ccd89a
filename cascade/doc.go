// Package cascade implements the cascading summarizer: it reduces a set of
// nodes to one final summary the way a tree reduction does, but keeps every
// intermediate summary as a first-class node with provenance links, so the
// whole reduction tree can be stored and browsed afterwards.
package cascade
