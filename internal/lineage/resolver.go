// Package lineage decides whether a document is a new version of an earlier upload and
// assigns version numbers within a lineage.
package lineage

import (
	"time"

	"github.com/hyperjump/clausewise/internal/vector"
)

// DefaultThreshold is the minimum centroid similarity for joining a lineage.
const DefaultThreshold = 0.85

// Embedded is a document together with its chunk embeddings.
type Embedded struct {
	DocumentID string
	CreatedAt  time.Time
	Embeddings [][]float32
}

// Candidate is an earlier document that already belongs to a lineage.
type Candidate struct {
	Embedded
	LineageID string
}

// Decision is the outcome of Resolve. LineageID is empty when a new lineage starts.
type Decision struct {
	LineageID         string
	MatchedDocumentID string
	// Similarity is the best candidate similarity, nil when there were no comparable
	// candidates.
	Similarity *float64
}

// NewLineage reports whether the subject starts its own lineage.
func (d Decision) NewLineage() bool { return d.LineageID == "" }

// Resolver compares chunk-embedding centroids.
type Resolver struct {
	threshold float64
}

// NewResolver returns a resolver with the given threshold, or DefaultThreshold when
// threshold is not in (0, 1].
func NewResolver(threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Resolver{threshold: threshold}
}

// Threshold returns the join threshold.
func (r *Resolver) Threshold() float64 { return r.threshold }

// Similarity is the cosine similarity of the L2-normalized centroids of a and b. It is
// symmetric and does not depend on the scale of individual embeddings.
func Similarity(a, b [][]float32) (float64, bool) {
	ca, err := vector.Centroid(a)
	if err != nil || ca == nil {
		return 0, false
	}
	cb, err := vector.Centroid(b)
	if err != nil || cb == nil || len(ca) != len(cb) {
		return 0, false
	}
	return vector.CosineSimilarity(ca, cb), true
}

// Resolve picks the most similar candidate. Ties go to the most recently created
// candidate, then to the smaller document ID. The subject joins that candidate's lineage
// when the similarity reaches the threshold. Candidates without embeddings, or the
// subject itself, are ignored.
func (r *Resolver) Resolve(subject Embedded, candidates []Candidate) Decision {
	var (
		best    *Candidate
		bestSim float64
	)
	for i := range candidates {
		c := &candidates[i]
		if c.DocumentID == subject.DocumentID || c.LineageID == "" {
			continue
		}
		sim, ok := Similarity(subject.Embeddings, c.Embeddings)
		if !ok {
			continue
		}
		if best == nil || better(sim, c, bestSim, best) {
			best, bestSim = c, sim
		}
	}
	if best == nil {
		return Decision{}
	}
	sim := bestSim
	if sim < r.threshold {
		return Decision{Similarity: &sim}
	}
	return Decision{LineageID: best.LineageID, MatchedDocumentID: best.DocumentID, Similarity: &sim}
}

func better(sim float64, c *Candidate, bestSim float64, best *Candidate) bool {
	if sim != bestSim {
		return sim > bestSim
	}
	if !c.CreatedAt.Equal(best.CreatedAt) {
		return c.CreatedAt.After(best.CreatedAt)
	}
	return c.DocumentID < best.DocumentID
}
