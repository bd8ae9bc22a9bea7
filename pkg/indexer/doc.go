// Package indexer writes passages into the indexes that retrieval reads.
//
// Each index is hidden behind the [Indexer] interface:
//
//	┌─────────────────┐
//	│ ingest.Pipeline │
//	└────────┬────────┘
//	         │
//	┌────────▼────────┐
//	│  HybridIndexer  │  ← fans out writes
//	└────────┬────────┘
//	         │
//	    ┌────┴─────┐
//	    │          │
//	┌───▼────┐ ┌───▼────┐
//	│Lexical │ │ Vector │  (embeds, then adds)
//	└────────┘ └────────┘
//
// Passage ids are the chunk ids produced by the chunker, so both indexes
// and the document store agree on identity.
//
// All Indexer implementations are safe for concurrent use.
package indexer
