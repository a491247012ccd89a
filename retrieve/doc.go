// Package retrieve defines the retriever contract shared by the
// classification and vector retrievers, and a composite retriever that
// concatenates results from several sources.
package retrieve
