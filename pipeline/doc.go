// Package pipeline orchestrates the staged construction of a shelf run:
// ingest documents, summarize them, embed the summaries, invent a
// classification system, refine summaries per document type, summarize
// every category and path, and link similar documents. Each stage persists
// a versioned store snapshot in the run directory so a run can resume from
// any stage, and a status record tracks progress for the API.
package pipeline
