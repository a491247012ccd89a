// Package server exposes finished and in-flight shelf runs over a JSON
// HTTP API.
//
// The API is deliberately thin: launching a run returns immediately and
// the pipeline executes in the background, either in-process or through
// the Redis run queue. Everything else reads the artifacts a run leaves
// in its directory, so the server stays stateless across restarts.
//
// Endpoints:
//
//	GET  /health                        liveness probe
//	POST /runs                          launch a run
//	GET  /runs                          list known runs
//	GET  /runs/{id}/status              pipeline progress record
//	GET  /runs/{id}/logs                timestamped progress log lines
//	GET  /runs/{id}/tree                category tree
//	GET  /runs/{id}/digraph             classification graph (vertices and edges)
//	GET  /runs/{id}/tags                tag graph
//	GET  /runs/{id}/nodes/{node}/text   stored text of a node
//	GET  /runs/{id}/nodes/{node}/summary summary for a tree location
//	GET  /runs/{id}/nodes/{node}/similar IDs of similar documents
//	GET  /runs/{id}/query?q=...         hybrid retrieval plus synthesis
//
// Errors are always JSON payloads of the form {"error": "..."}; stack
// traces never leave the process.
package server
