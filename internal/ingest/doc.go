// Package ingest loads scraped documents and writes them into the document
// store and both retrieval indexes.
//
// A run chunks every document, replaces its stored chunks, removes the
// chunks that no longer exist from the indexes and then indexes the new
// chunks in batches on a worker pool. Watch repeats this for files that
// change under a corpus directory. Both honour the root's ignore files.
package ingest
