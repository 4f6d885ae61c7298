package agents

import (
	"fmt"

	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/topics"
)

// UnknownSignals returns every signal of spec set to Unknown.
func UnknownSignals(spec topics.Spec) map[models.SignalKey]models.SignalValue {
	out := make(map[models.SignalKey]models.SignalValue, len(spec.Signals))
	for _, sig := range spec.Signals {
		out[sig.Key] = models.Unknown()
	}
	return out
}

// FromParsed builds the finding for a successful model response.
func FromParsed(spec topics.Spec, parsed *ParsedFinding, model string, evidenceCount int) *models.AgentFinding {
	narrative := parsed.Narrative
	if narrative == "" {
		narrative = fmt.Sprintf("%s analysis returned no summary.", spec.Topic)
	}
	return &models.AgentFinding{
		Topic:         spec.Topic,
		Signals:       parsed.Signals,
		Narrative:     narrative,
		ModelUsed:     model,
		Status:        models.FindingComplete,
		EvidenceCount: evidenceCount,
		Citations:     parsed.Citations,
	}
}

// InsufficientData is the finding for a topic whose retrieval found no evidence.
func InsufficientData(spec topics.Spec) *models.AgentFinding {
	return &models.AgentFinding{
		Topic:     spec.Topic,
		Signals:   UnknownSignals(spec),
		Narrative: fmt.Sprintf("Insufficient data: no %s clauses were found in the document.", spec.Topic),
		Status:    models.FindingInsufficientData,
	}
}

// Degraded is the placeholder for a topic whose analysis could not complete. cause is the
// last error seen; attempts is the number of inference calls made.
func Degraded(spec topics.Spec, cause error, attempts, evidenceCount int) *models.AgentFinding {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return &models.AgentFinding{
		Topic:   spec.Topic,
		Signals: UnknownSignals(spec),
		Narrative: fmt.Sprintf("Degraded analysis: %s signals are unknown after %d inference attempt(s); last error: %s",
			spec.Topic, attempts, reason),
		Status:        models.FindingDegraded,
		EvidenceCount: evidenceCount,
	}
}
