// Package scoring turns agent findings into a composite risk score and tier.
package scoring

import (
	"errors"
	"fmt"

	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/pkg/utils"
)

const (
	Baseline = 10.0
	MinScore = 1.0
	MaxScore = 10.0

	redBelow    = 4.0
	yellowBelow = 8.0
)

// ErrScoringInputInvalid is returned when the findings cannot be scored.
var ErrScoringInputInvalid = errors.New("invalid scoring input")

var knownTopics = map[models.Topic]bool{
	models.TopicLegal:      true,
	models.TopicFinance:    true,
	models.TopicCompliance: true,
	models.TopicOperations: true,
	models.TopicSecurity:   true,
}

// Result is a composite score with the penalties that produced it.
type Result struct {
	Score     float64                 `json:"score"`
	Tier      models.RiskTier         `json:"tier"`
	Penalties []models.AppliedPenalty `json:"penalties"`
}

// Scorer applies a fixed rule table.
type Scorer struct {
	rules []Rule
}

// NewScorer returns a scorer over rules. With no rules it uses DefaultRules.
func NewScorer(rules ...Rule) *Scorer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Scorer{rules: rules}
}

// Score scores findings with the default rule table.
func Score(findings []*models.AgentFinding) (*Result, error) {
	return NewScorer().Score(findings)
}

// Score subtracts each fired rule's weight from the baseline, clamps to [1, 10], rounds
// to one decimal and derives the tier from the rounded value. Findings may be partial;
// rules over missing topics or unknown signals are skipped.
func (s *Scorer) Score(findings []*models.AgentFinding) (*Result, error) {
	byTopic, err := indexFindings(findings)
	if err != nil {
		return nil, err
	}

	score := Baseline
	penalties := make([]models.AppliedPenalty, 0)
	for _, rule := range s.rules {
		f, ok := byTopic[rule.Topic()]
		if !ok {
			continue
		}
		fired, known := rule.Evaluate(f)
		if !known || !fired {
			continue
		}
		score -= rule.Weight()
		penalties = append(penalties, models.AppliedPenalty{
			Rule:   rule.Name(),
			Topic:  rule.Topic(),
			Weight: rule.Weight(),
		})
	}

	score = utils.RoundTo(utils.Clamp(score, MinScore, MaxScore), 1)
	return &Result{Score: score, Tier: Tier(score), Penalties: penalties}, nil
}

// Tier classifies a rounded score.
func Tier(score float64) models.RiskTier {
	switch {
	case score < redBelow:
		return models.TierRed
	case score < yellowBelow:
		return models.TierYellow
	default:
		return models.TierGreen
	}
}

func indexFindings(findings []*models.AgentFinding) (map[models.Topic]*models.AgentFinding, error) {
	byTopic := make(map[models.Topic]*models.AgentFinding, len(findings))
	for i, f := range findings {
		if f == nil {
			return nil, fmt.Errorf("%w: finding %d is nil", ErrScoringInputInvalid, i)
		}
		if !knownTopics[f.Topic] {
			return nil, fmt.Errorf("%w: unknown topic %q", ErrScoringInputInvalid, f.Topic)
		}
		if _, dup := byTopic[f.Topic]; dup {
			return nil, fmt.Errorf("%w: duplicate finding for %s", ErrScoringInputInvalid, f.Topic)
		}
		for key, v := range f.Signals {
			if !v.Valid() {
				return nil, fmt.Errorf("%w: %s.%s has invalid kind %q", ErrScoringInputInvalid, f.Topic, key, v.Kind)
			}
		}
		byTopic[f.Topic] = f
	}
	return byTopic, nil
}
