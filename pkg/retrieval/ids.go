package retrieval

import (
	"strconv"
	"strings"
)

// ChunkSeparator joins a document id and a chunk ordinal.
const ChunkSeparator = "#"

// ChunkID returns the shared id of chunk n of a document, e.g. "doc-42#3".
func ChunkID(documentID string, n int) string {
	return documentID + ChunkSeparator + strconv.Itoa(n)
}

// ParentID returns the document id a chunk id belongs to. Ids without a
// chunk suffix are document ids and are returned unchanged.
func ParentID(id string) string {
	i := strings.LastIndex(id, ChunkSeparator)
	if i <= 0 {
		return id
	}
	if _, err := strconv.Atoi(id[i+1:]); err != nil {
		return id
	}
	return id[:i]
}

// collapseToDocuments maps a canonical list onto parent document ids. Each
// document keeps its best-ranked chunk's score and position.
func collapseToDocuments(list RankedList) RankedList {
	out := make(RankedList, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, h := range list {
		parent := ParentID(h.ID)
		if _, ok := seen[parent]; ok {
			continue
		}
		seen[parent] = struct{}{}
		h.ID = parent
		h.Text = ""
		out = append(out, h)
	}
	return out
}
