// Package similarity scores pairs of items and ranks connection candidates.
//
// Items with embeddings on both sides are compared with cosine similarity.
// When either side has no embedding, the score falls back to the overlap of
// the items' topic words, so that a failed embedding call still produces a
// usable connection signal.
package similarity

import (
	"math"
	"strings"
	"unicode"

	"github.com/papercomputeco/weave/pkg/notes"
)

const (
	// substringBoost is the floor applied to the topic score when a topic of
	// one item is contained in a topic of the other.
	substringBoost = 0.5

	// minBoostWordLen is the shortest word considered for word level
	// containment, so short words like "go" or "ai" do not match everything.
	minBoostWordLen = 3
)

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Vectors of different lengths, empty vectors and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}

// TopicOverlap returns the Jaccard similarity of the lowercase topic words
// of a and b, raised to at least 0.5 when a topic of one side contains a
// topic (or a topic word) of the other.
func TopicOverlap(a, b []string) float64 {
	wordsA := topicWords(a)
	wordsB := topicWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection

	score := float64(intersection) / float64(union)
	if score < substringBoost && containsTopic(a, b, wordsA, wordsB) {
		score = substringBoost
	}
	return score
}

// Score compares two items, preferring embeddings when both sides have one.
func Score(a, b *notes.Item) (float64, notes.Method) {
	if a.HasEmbedding() && b.HasEmbedding() {
		return Cosine(a.Embedding, b.Embedding), notes.MethodEmbedding
	}
	return TopicOverlap(a.Topics, b.Topics), notes.MethodTopics
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func topicWords(topics []string) map[string]bool {
	words := make(map[string]bool)
	for _, t := range topics {
		for _, w := range tokenize(t) {
			words[w] = true
		}
	}
	return words
}

func containsTopic(a, b []string, wordsA, wordsB map[string]bool) bool {
	for _, ta := range a {
		ta = strings.ToLower(strings.TrimSpace(ta))
		if ta == "" {
			continue
		}
		for _, tb := range b {
			tb = strings.ToLower(strings.TrimSpace(tb))
			if tb == "" {
				continue
			}
			if strings.Contains(ta, tb) || strings.Contains(tb, ta) {
				return true
			}
		}
	}

	for wa := range wordsA {
		if len(wa) < minBoostWordLen {
			continue
		}
		for wb := range wordsB {
			if len(wb) < minBoostWordLen {
				continue
			}
			if strings.Contains(wa, wb) || strings.Contains(wb, wa) {
				return true
			}
		}
	}

	return false
}
