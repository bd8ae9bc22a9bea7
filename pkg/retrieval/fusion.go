package retrieval

import (
	"sort"
)

// Ranking is a source's list together with its normalized scores.
type Ranking struct {
	List       RankedList
	Normalized []float64
}

// NewRanking canonicalizes list and normalizes it with s.
func NewRanking(list RankedList, s Strategy) (*Ranking, error) {
	list = list.canonical()
	norm, err := Normalize(list, s)
	if err != nil {
		return nil, err
	}
	return &Ranking{List: list, Normalized: norm}, nil
}

// Fuse merges the lexical and semantic rankings into at most k items.
//
// A nil ranking is an absent source: every item it would have contributed
// scores zero for it, so fusion degrades to single-source ranking. An item
// missing from one ranking likewise gets zero from that source, not a
// penalty. Ties on fused score rank items supported by both sources first,
// then by ascending id. A source supports an item only when its weighted
// contribution is positive, so a bottom-ranked min-max entry (normalized 0)
// does not count.
func Fuse(lexical, semantic *Ranking, w Weights, k int) []RetrievedItem {
	if k <= 0 {
		return []RetrievedItem{}
	}

	entries := make(map[string]*RetrievedItem)
	order := make([]*RetrievedItem, 0)
	support := make(map[string]Source)

	add := func(src Source, r *Ranking, weight float64) {
		if r == nil {
			return
		}
		for i, h := range r.List {
			score := &SourceScore{Rank: i + 1, Raw: h.Score, Normalized: r.Normalized[i]}

			e, ok := entries[h.ID]
			if !ok {
				e = &RetrievedItem{ID: h.ID, DocumentID: ParentID(h.ID)}
				entries[h.ID] = e
				order = append(order, e)
			}
			if e.Source&src != 0 {
				// Repeated id within one list: the first (best) entry counts.
				continue
			}
			if e.Text == "" {
				e.Text = h.Text
			}
			if len(h.Terms) > 0 {
				e.Terms = h.Terms
			}

			e.Source |= src
			contribution := weight * score.Normalized
			e.FusedScore += contribution
			if contribution > 0 {
				support[h.ID] |= src
			}
			if src == SourceLexical {
				e.Lexical = score
			} else {
				e.Semantic = score
			}
		}
	}

	add(SourceLexical, lexical, w.Lexical)
	add(SourceSemantic, semantic, w.Semantic)

	items := make([]RetrievedItem, len(order))
	for i, e := range order {
		items[i] = *e
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		aBoth, bBoth := support[a.ID] == SourceBoth, support[b.ID] == SourceBoth
		if aBoth != bBoth {
			return aBoth
		}
		return a.ID < b.ID
	})

	if len(items) > k {
		items = items[:k]
	}
	return items
}
