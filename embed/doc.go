// Package embed generates vector embeddings for shelf nodes.
//
// The package provides an OpenAI-compatible HTTP client that also works
// against local providers such as Ollama in compatibility mode, and a
// caching wrapper that makes repeated pipeline runs cheap: every embedding
// request is content-addressed, so only texts never seen before reach the
// provider and count against the cache-miss budget.
package embed
