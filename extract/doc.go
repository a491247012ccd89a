// Package extract holds the model-driven metadata extractors that prepare
// documents for classification: per-document classification information,
// corpus-wide taxonomy synthesis with per-document assignment, and document
// type discovery with regrouping.
package extract
