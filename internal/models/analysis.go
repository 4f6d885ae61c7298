package models

import "time"

// RiskTier is the coarse classification of a composite score.
type RiskTier string

const (
	TierRed    RiskTier = "Red"
	TierYellow RiskTier = "Yellow"
	TierGreen  RiskTier = "Green"
)

// AppliedPenalty records one scoring rule that fired.
type AppliedPenalty struct {
	Rule   string  `json:"rule"`
	Topic  Topic   `json:"topic"`
	Weight float64 `json:"weight"`
}

// AnalysisResult is the stored outcome of one analysis run. A new run creates a new
// record; results are never mutated.
type AnalysisResult struct {
	ID             string           `json:"id"`
	DocumentID     string           `json:"document_id"`
	Version        int              `json:"version"`
	Findings       []*AgentFinding  `json:"findings"`
	CompositeScore float64          `json:"composite_score"`
	RiskTier       RiskTier         `json:"risk_tier"`
	Penalties      []AppliedPenalty `json:"penalties,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Finding returns the finding for topic, or nil.
func (r *AnalysisResult) Finding(topic Topic) *AgentFinding {
	for _, f := range r.Findings {
		if f != nil && f.Topic == topic {
			return f
		}
	}
	return nil
}

// DocumentVersion places a document in a lineage. VersionNumber is assigned once and
// never mutated; records form an append-only sequence per LineageID.
type DocumentVersion struct {
	LineageID     string    `json:"lineage_id"`
	VersionNumber int       `json:"version_number"`
	DocumentID    string    `json:"document_id"`
	CreatedAt     time.Time `json:"created_at"`
	// SimilarityToPrevious is the centroid similarity to the version numbered one lower,
	// nil for the first version of a lineage.
	SimilarityToPrevious *float64 `json:"similarity_to_previous"`
}
