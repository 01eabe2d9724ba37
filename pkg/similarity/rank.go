package similarity

import (
	"sort"

	"github.com/papercomputeco/weave/pkg/notes"
)

const (
	// DefaultThreshold is the score a candidate must exceed to be connected.
	DefaultThreshold = 0.3

	// DefaultMaxResults caps the connections computed per item.
	DefaultMaxResults = 5
)

// Match is a candidate item that scored above the threshold.
type Match struct {
	Item   *notes.Item
	Score  float64
	Method notes.Method
}

// Ranker scores candidates against a target item and keeps the best ones.
type Ranker struct {
	threshold  float64
	maxResults int
}

// NewRanker creates a Ranker. Non-positive values select the defaults.
func NewRanker(threshold float64, maxResults int) *Ranker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Ranker{
		threshold:  threshold,
		maxResults: maxResults,
	}
}

// Threshold returns the score a candidate must strictly exceed.
func (r *Ranker) Threshold() float64 {
	return r.threshold
}

// Rank scores every candidate against target and returns those strictly
// above the threshold, highest first, capped to the configured maximum.
// Candidates with the target's own ID are ignored.
func (r *Ranker) Rank(target *notes.Item, candidates []*notes.Item) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate == nil || candidate.ID == target.ID {
			continue
		}

		score, method := Score(target, candidate)
		if score <= r.threshold {
			continue
		}

		matches = append(matches, Match{
			Item:   candidate,
			Score:  score,
			Method: method,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Item.ID < matches[j].Item.ID
		}
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > r.maxResults {
		matches = matches[:r.maxResults]
	}

	return matches
}
