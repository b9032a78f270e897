// Package fusion merges similarity results from the title and chunk
// collections into a single ranked, deduplicated context bundle.
package fusion

import (
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
)

// candidate is a similarity hit resolved to its durable item, with the
// originating chunk attached when the hit came from the chunk collection.
type candidate struct {
	Item  *models.Item
	Chunk *models.Chunk
	Score float64
}

// thresholdResults drops hits scoring below min. Results keep their order.
func thresholdResults(results []search.Result, min float64) []search.Result {
	kept := results[:0:0]
	for _, r := range results {
		if r.Similarity >= min {
			kept = append(kept, r)
		}
	}
	return kept
}

// mergeByScore merges two score-descending candidate lists into one
// score-descending list. On equal scores the first list wins, keeping
// the merge stable.
func mergeByScore(a, b []candidate) []candidate {
	merged := make([]candidate, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Score >= b[j].Score {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}

// dedupByItem keeps only the first candidate per item. On a
// score-descending list that is the item's best hit.
func dedupByItem(cands []candidate) []candidate {
	seen := make(map[int64]struct{}, len(cands))
	deduped := cands[:0:0]
	for _, c := range cands {
		if _, dup := seen[c.Item.ID]; dup {
			continue
		}
		seen[c.Item.ID] = struct{}{}
		deduped = append(deduped, c)
	}
	return deduped
}
