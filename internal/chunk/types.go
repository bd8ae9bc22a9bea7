// Package chunk splits documents into the overlapping passages that are
// indexed lexically and semantically.
package chunk

import "context"

// Window defaults. Sizes are counted in whitespace-separated words.
const (
	DefaultChunkWords   = 510
	DefaultOverlapWords = 50
	MinChunkWords       = 16
)

// Input is a document to split.
type Input struct {
	DocumentID string
	Title      string
	Content    string
}

// Chunk is one passage of a document.
type Chunk struct {
	// ID is "<document id>#<ordinal>", shared by every index.
	ID         string
	DocumentID string
	Ordinal    int
	Content    string

	// StartWord and EndWord bound the passage in the document's word
	// sequence (EndWord exclusive).
	StartWord int
	EndWord   int
}

// Chunker splits documents into chunks.
type Chunker interface {
	Chunk(ctx context.Context, doc *Input) ([]*Chunk, error)
}
