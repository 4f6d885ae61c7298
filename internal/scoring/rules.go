package scoring

import (
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/topics"
)

// Rule is one penalty in the scoring table.
type Rule interface {
	Name() string
	Topic() models.Topic
	Weight() float64
	// Evaluate reports whether the rule fires for f. known is false when a signal the
	// rule depends on is unknown, in which case the rule is skipped.
	Evaluate(f *models.AgentFinding) (fired, known bool)
}

// boolRule fires when a boolean signal equals want.
type boolRule struct {
	name   string
	topic  models.Topic
	key    models.SignalKey
	want   bool
	weight float64
}

func (r boolRule) Name() string        { return r.name }
func (r boolRule) Topic() models.Topic { return r.topic }
func (r boolRule) Weight() float64     { return r.weight }

func (r boolRule) Evaluate(f *models.AgentFinding) (bool, bool) {
	v := f.Signal(r.key)
	if v.Kind != models.SignalBool {
		return false, false
	}
	return v.Bool == r.want, true
}

// thresholdRule fires when a numeric signal is above (or below) a limit.
type thresholdRule struct {
	name   string
	topic  models.Topic
	key    models.SignalKey
	limit  float64
	above  bool
	weight float64
}

func (r thresholdRule) Name() string        { return r.name }
func (r thresholdRule) Topic() models.Topic { return r.topic }
func (r thresholdRule) Weight() float64     { return r.weight }

func (r thresholdRule) Evaluate(f *models.AgentFinding) (bool, bool) {
	v := f.Signal(r.key)
	if v.Kind != models.SignalNumber {
		return false, false
	}
	if r.above {
		return v.Number > r.limit, true
	}
	return v.Number < r.limit, true
}

// autoRenewalRule fires on auto-renewal without a price increase cap.
type autoRenewalRule struct{}

func (autoRenewalRule) Name() string        { return "auto_renewal_without_price_cap" }
func (autoRenewalRule) Topic() models.Topic { return models.TopicFinance }
func (autoRenewalRule) Weight() float64     { return 1.5 }

func (autoRenewalRule) Evaluate(f *models.AgentFinding) (bool, bool) {
	renewal, capped := f.Signal(topics.AutoRenewal), f.Signal(topics.PriceIncreaseCapPresent)
	if renewal.Kind != models.SignalBool || capped.Kind != models.SignalBool {
		return false, false
	}
	return renewal.Bool && !capped.Bool, true
}

// DefaultRules returns the penalty table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		boolRule{"missing_indemnity_cap", models.TopicLegal, topics.IndemnityCapPresent, false, 2.0},
		boolRule{"uncapped_liability", models.TopicLegal, topics.LiabilityCapPresent, false, 2.5},
		boolRule{"no_termination_for_convenience", models.TopicLegal, topics.TerminationForConvenience, false, 0.75},
		boolRule{"no_consequential_damages_waiver", models.TopicLegal, topics.ConsequentialDamagesWaiver, false, 1.0},
		boolRule{"foreign_governing_law", models.TopicLegal, topics.GoverningLawMatch, false, 1.0},
		thresholdRule{"long_payment_terms", models.TopicFinance, topics.PaymentTermsDays, 60, true, 1.0},
		autoRenewalRule{},
		thresholdRule{"low_sla_uptime", models.TopicOperations, topics.SLAUptime, 99.0, false, 1.5},
		boolRule{"missing_gdpr_clause", models.TopicCompliance, topics.GDPRAddressed, false, 2.0},
		boolRule{"missing_audit_rights", models.TopicCompliance, topics.AuditRightsPresent, false, 1.0},
	}
}
