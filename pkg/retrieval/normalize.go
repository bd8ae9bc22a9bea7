package retrieval

import (
	"strings"
)

// Strategy selects how raw scores are mapped onto [0,1].
type Strategy string

const (
	// MinMax maps (s-min)/(max-min); all scores become 1.0 when max == min.
	MinMax Strategy = "minmax"
	// ReciprocalRank maps the item at 1-indexed rank r to 1/r.
	ReciprocalRank Strategy = "reciprocal_rank"
)

// ParseStrategy accepts the canonical names plus a few common spellings.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minmax", "min-max", "min_max":
		return MinMax, nil
	case "reciprocal_rank", "reciprocal-rank", "rank", "rr":
		return ReciprocalRank, nil
	default:
		return "", configError("unknown normalization strategy %q (use minmax or reciprocal_rank)", s)
	}
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == MinMax || s == ReciprocalRank
}

// Normalize returns one normalized score per entry of list, in list order.
// The list is expected to be in ranking order (best first).
func Normalize(list RankedList, s Strategy) ([]float64, error) {
	switch s {
	case MinMax:
		return minMax(list), nil
	case ReciprocalRank:
		return reciprocalRank(list), nil
	default:
		return nil, configError("unknown normalization strategy %q", string(s))
	}
}

func minMax(list RankedList) []float64 {
	out := make([]float64, len(list))
	if len(list) == 0 {
		return out
	}

	lo, hi := list[0].Score, list[0].Score
	for _, h := range list[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	span := hi - lo
	for i, h := range list {
		if span == 0 {
			out[i] = 1.0
			continue
		}
		v := (h.Score - lo) / span
		// Guard against rounding drift outside [0,1].
		switch {
		case v < 0:
			v = 0
		case v > 1:
			v = 1
		}
		out[i] = v
	}
	return out
}

func reciprocalRank(list RankedList) []float64 {
	out := make([]float64, len(list))
	for i := range list {
		out[i] = 1.0 / float64(i+1)
	}
	return out
}

// resolveStrategy picks the single strategy for a call. Per-source
// overrides fall back to the global strategy; after that both sources must
// agree.
func resolveStrategy(global, lexical, semantic Strategy) (Strategy, error) {
	if lexical == "" {
		lexical = global
	}
	if semantic == "" {
		semantic = global
	}
	if lexical == "" || semantic == "" {
		return "", configError("normalization strategy is not set")
	}
	if lexical != semantic {
		return "", configError("mixed normalization strategies are not allowed (lexical=%s, semantic=%s)", lexical, semantic)
	}
	if !lexical.Valid() {
		return "", configError("unknown normalization strategy %q", string(lexical))
	}
	return lexical, nil
}
