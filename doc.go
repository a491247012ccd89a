// Package shelf builds a hierarchical, navigable knowledge base from a
// heterogeneous document set and answers queries against it with a hybrid
// retriever.
//
// The pipeline repeatedly invokes a text-completion model to summarize
// document chunks (cascade), synthesize a shared taxonomy (a category tree
// plus a flat tag set), file each document at a taxonomy location, roll
// summaries up every tree path, and link documents by embedding similarity.
// At query time an embedding-similarity retriever and an LLM-driven taxonomy
// retriever run independently and their results are merged for answer
// synthesis.
//
// Package structure:
//
//   - node: the content-node model and the flat node arena
//   - llm, embed: provider clients, response caches, and the call-budget guard
//   - cascade: the provenance-tracked recursive summarizer
//   - classify: the classification store, index, and taxonomy retriever
//   - vector: the embedding index and similarity retriever
//   - retrieve: the retriever contract and the composing retriever
//   - extract: LLM-driven metadata transformers
//   - pipeline: the staged build orchestrator and its status record
//   - queue, server, config, cmd/shelf: run queue, HTTP surface, config, CLI
//
// The root package holds the error taxonomy shared by every component.
package shelf
