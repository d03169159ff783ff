// Package aggregate groups resolved entities, totals their series, measures
// revenue concentration per group, and compares ranked snapshots across
// periods. Outputs are plain records for the reporting layer.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"gamepulse/internal/concentration"
	"gamepulse/internal/identity"
	"gamepulse/internal/series"
	"gamepulse/internal/source"
)

// KeyFunc assigns an entity to a group. Returning an empty key excludes the
// entity from grouping.
type KeyFunc func(e identity.Entity) string

// ByCategory groups entities by their category field.
func ByCategory(e identity.Entity) string { return e.Category }

// ByPublisher groups entities by their publisher field.
func ByPublisher(e identity.Entity) string { return e.Publisher }

// All places every entity into one group.
func All(identity.Entity) string { return "all" }

// Ranking is one entity's position inside a group, ranked descending by
// value. Ties are broken by canonical id so the order is reproducible.
type Ranking struct {
	Rank        int     `json:"rank"`
	CanonicalID string  `json:"canonical_id"`
	Value       float64 `json:"value"`
	Share       float64 `json:"share"`
}

// Group is the aggregation output for one key.
//
// Members lists every entity the key function assigned here. Totals and
// Rankings cover only members that had observations: an entity with no data
// is absent from both rather than coerced to zero.
type Group struct {
	Key           string               `json:"key"`
	Members       []string             `json:"members"`
	Totals        map[string]float64   `json:"totals"`
	Total         float64              `json:"total"`
	Concentration concentration.Result `json:"concentration"`
	Rankings      []Ranking            `json:"rankings"`
}

// GroupBy buckets entities by keyFn, totals each member's series of the
// given kind, ranks members, and measures concentration over the member
// totals. Series are consumed as given; window them first if a narrower
// period is wanted. Groups come back sorted by key.
func GroupBy(keyFn KeyFunc, entities []identity.Entity, seriesList []series.TimeSeries, kind source.Metric, topNs ...int) ([]Group, error) {
	if keyFn == nil {
		return nil, fmt.Errorf("aggregate: key function is required")
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("aggregate: invalid metric kind %q", kind)
	}

	totalsByID := make(map[string]float64)
	for _, ts := range seriesList {
		if ts.Kind != kind {
			continue
		}
		totalsByID[ts.CanonicalID] += ts.Total()
	}

	grouped := make(map[string][]identity.Entity)
	for _, e := range entities {
		key := keyFn(e)
		if key == "" {
			continue
		}
		grouped[key] = append(grouped[key], e)
	}

	out := make([]Group, 0, len(grouped))
	for key, members := range grouped {
		g := Group{Key: key, Totals: make(map[string]float64)}
		for _, e := range members {
			g.Members = append(g.Members, e.CanonicalID)
			total, ok := totalsByID[e.CanonicalID]
			if !ok {
				continue
			}
			g.Totals[e.CanonicalID] = total
			g.Total += total
		}
		sort.Strings(g.Members)
		g.Rankings = rank(g.Totals, g.Total)

		values := make([]float64, 0, len(g.Totals))
		for _, v := range g.Totals {
			values = append(values, v)
		}
		result, err := concentration.Measure(values, topNs...)
		if err != nil {
			return nil, fmt.Errorf("aggregate group %q: %w", key, err)
		}
		g.Concentration = result

		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// rank orders totals descending by value, breaking ties by canonical id.
func rank(totals map[string]float64, groupTotal float64) []Ranking {
	rankings := make([]Ranking, 0, len(totals))
	for id, v := range totals {
		r := Ranking{CanonicalID: id, Value: v}
		if groupTotal > 0 {
			r.Share = v / groupTotal
		}
		rankings = append(rankings, r)
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].Value != rankings[j].Value {
			return rankings[i].Value > rankings[j].Value
		}
		return rankings[i].CanonicalID < rankings[j].CanonicalID
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings
}

// Delta is a change between two period values. Percent is meaningless when
// the prior value is zero, so it carries a defined flag instead of
// overloading zero or infinity.
type Delta struct {
	Absolute float64 `json:"absolute"`
	Percent  float64 `json:"percent,omitempty"`
	Defined  bool    `json:"defined"`
}

// NewDelta computes current minus prior. Percent is left undefined when
// prior is zero or not finite.
func NewDelta(prior, current float64) Delta {
	d := Delta{Absolute: current - prior}
	if prior != 0 && !math.IsInf(prior, 0) && !math.IsNaN(prior) {
		d.Percent = (current - prior) / prior * 100
		d.Defined = true
	}
	return d
}

// EntityDelta compares one entity's rank and value across two periods.
// RankChange is prior minus current, so climbing the table is positive.
// A new entrant has no prior rank; check NewEntrant before reading
// PriorRank or RankChange.
type EntityDelta struct {
	CanonicalID string `json:"canonical_id"`
	CurrentRank int    `json:"current_rank"`
	PriorRank   int    `json:"prior_rank,omitempty"`
	RankChange  int    `json:"rank_change"`
	NewEntrant  bool   `json:"new_entrant,omitempty"`
	Value       Delta  `json:"value"`
}

// GroupDelta is the period-over-period comparison of one group. Entities
// ranked in the prior period but absent now appear in Departed, which keeps
// leavers distinct from new entrants.
type GroupDelta struct {
	Key      string        `json:"key"`
	Total    Delta         `json:"total"`
	Entities []EntityDelta `json:"entities"`
	Departed []string      `json:"departed,omitempty"`
}

// Compare computes rank and value movement from prior to current. Both
// groups must share a key.
func Compare(prior, current Group) (GroupDelta, error) {
	if prior.Key != current.Key {
		return GroupDelta{}, fmt.Errorf("aggregate: cannot compare group %q against %q", current.Key, prior.Key)
	}

	priorRanks := make(map[string]Ranking, len(prior.Rankings))
	for _, r := range prior.Rankings {
		priorRanks[r.CanonicalID] = r
	}

	delta := GroupDelta{
		Key:   current.Key,
		Total: NewDelta(prior.Total, current.Total),
	}
	seen := make(map[string]bool, len(current.Rankings))
	for _, r := range current.Rankings {
		seen[r.CanonicalID] = true
		ed := EntityDelta{
			CanonicalID: r.CanonicalID,
			CurrentRank: r.Rank,
		}
		if p, ok := priorRanks[r.CanonicalID]; ok {
			ed.PriorRank = p.Rank
			ed.RankChange = p.Rank - r.Rank
			ed.Value = NewDelta(p.Value, r.Value)
		} else {
			ed.NewEntrant = true
			ed.Value = NewDelta(0, r.Value)
		}
		delta.Entities = append(delta.Entities, ed)
	}
	for _, r := range prior.Rankings {
		if !seen[r.CanonicalID] {
			delta.Departed = append(delta.Departed, r.CanonicalID)
		}
	}
	sort.Strings(delta.Departed)
	return delta, nil
}
