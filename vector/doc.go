// Package vector provides an in-memory cosine-similarity index over node
// embeddings, with a JSON snapshot format so an index built by the
// pipeline can be reloaded without re-embedding.
package vector
