// Package llm provides the text-completion boundary of the shelf pipeline.
//
// The pipeline depends only on the Completer interface. The concrete pieces
// layered behind it are an OpenAI-compatible HTTP client, a badger-backed
// response cache keyed by content hash, and a call-budget guard that counts
// total and cache-miss calls and turns a runaway pipeline into a fatal error
// instead of an unbounded cost.
//
// Prompt templates use named placeholders ({context}, {query}) and are
// treated as opaque text; only the placeholder contract is part of this
// package's API.
package llm
