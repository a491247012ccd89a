// Package classify implements the hierarchical classification index at the
// heart of the shelf: a store that organizes document summaries under an
// LLM-invented taxonomy and tag vocabulary, and a retriever that answers
// queries by asking the model to place them in that taxonomy.
//
// Tree locations are paths of category names joined by " - ", for example
// "Computer Science - Artificial Intelligence". The store keeps, per
// location, the document nodes filed there plus a location summary, and a
// bottom-up path summary for every prefix of every location. Tags form a
// flat secondary vocabulary over the same nodes.
package classify
