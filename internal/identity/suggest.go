package identity

import (
	"fmt"
	"sort"

	"github.com/antzucaro/matchr"
)

// DefaultSuggestionThreshold is the minimum Jaro-Winkler similarity for a
// pair of unmerged entities to be reported as a possible duplicate.
const DefaultSuggestionThreshold = 0.92

// Suggestion flags two entities whose names are close enough that a human
// should check whether they are the same product. Suggestions are advisory;
// the resolver never merges on similarity alone.
type Suggestion struct {
	LeftID     string  `json:"left_id"`
	RightID    string  `json:"right_id"`
	LeftName   string  `json:"left_name"`
	RightName  string  `json:"right_name"`
	Similarity float64 `json:"similarity"`
}

// Suggestions compares every pair of resolved entities by normalized name
// and returns the pairs scoring at or above minSimilarity, most similar
// first. Exact matches are skipped: identical names that stayed separate are
// already recorded as conflicts.
func (r *Resolver) Suggestions(minSimilarity float64) ([]Suggestion, error) {
	if minSimilarity <= 0 || minSimilarity > 1 {
		return nil, fmt.Errorf("suggestions: similarity threshold must be in (0, 1], got %v", minSimilarity)
	}

	entities := r.Entities()
	var out []Suggestion
	for i := 0; i < len(entities); i++ {
		left := NormalizeName(entities[i].DisplayName)
		if left == "" {
			continue
		}
		for j := i + 1; j < len(entities); j++ {
			right := NormalizeName(entities[j].DisplayName)
			if right == "" {
				continue
			}
			similarity := matchr.JaroWinkler(left, right, false)
			if similarity < minSimilarity || similarity == 1 {
				continue
			}
			out = append(out, Suggestion{
				LeftID:     entities[i].CanonicalID,
				RightID:    entities[j].CanonicalID,
				LeftName:   entities[i].DisplayName,
				RightName:  entities[j].DisplayName,
				Similarity: similarity,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].LeftID != out[j].LeftID {
			return out[i].LeftID < out[j].LeftID
		}
		return out[i].RightID < out[j].RightID
	})
	return out, nil
}
