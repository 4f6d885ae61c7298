package models

import (
	"fmt"
	"strconv"
)

// Topic is one of the fixed analysis domains.
type Topic string

const (
	TopicLegal      Topic = "Legal"
	TopicFinance    Topic = "Finance"
	TopicCompliance Topic = "Compliance"
	TopicOperations Topic = "Operations"
	TopicSecurity   Topic = "Security"
)

// SignalKey names a structured signal reported by a topic agent.
type SignalKey string

// SignalKind tags which member of SignalValue is meaningful.
type SignalKind string

const (
	SignalUnknown  SignalKind = "unknown"
	SignalBool     SignalKind = "bool"
	SignalNumber   SignalKind = "number"
	SignalCategory SignalKind = "category"
)

// SignalValue is a tagged variant: exactly one of Bool, Number, or Category is meaningful
// depending on Kind. An Unknown value carries no information.
type SignalValue struct {
	Kind     SignalKind `json:"kind"`
	Bool     bool       `json:"bool,omitempty"`
	Number   float64    `json:"number,omitempty"`
	Category string     `json:"category,omitempty"`
}

// Unknown returns a value that carries no information.
func Unknown() SignalValue { return SignalValue{Kind: SignalUnknown} }

// Bool returns a boolean signal value.
func Bool(b bool) SignalValue { return SignalValue{Kind: SignalBool, Bool: b} }

// Number returns a numeric signal value.
func Number(n float64) SignalValue { return SignalValue{Kind: SignalNumber, Number: n} }

// Category returns a categorical signal value.
func Category(c string) SignalValue { return SignalValue{Kind: SignalCategory, Category: c} }

// IsKnown reports whether the value carries information.
func (v SignalValue) IsKnown() bool {
	return v.Kind == SignalBool || v.Kind == SignalNumber || v.Kind == SignalCategory
}

// Valid reports whether Kind is one of the defined kinds.
func (v SignalValue) Valid() bool {
	return v.Kind == SignalUnknown || v.IsKnown()
}

// String renders the value for logs and text output.
func (v SignalValue) String() string {
	switch v.Kind {
	case SignalBool:
		return strconv.FormatBool(v.Bool)
	case SignalNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case SignalCategory:
		return v.Category
	case SignalUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("invalid(%s)", string(v.Kind))
	}
}

// FindingStatus describes how complete a finding is.
type FindingStatus string

const (
	// FindingComplete is a finding parsed from a model response.
	FindingComplete FindingStatus = "complete"
	// FindingInsufficientData is produced when retrieval found no evidence for the topic.
	FindingInsufficientData FindingStatus = "insufficient_data"
	// FindingDegraded is the placeholder produced when every fallback model failed.
	FindingDegraded FindingStatus = "degraded"
)

// EvidenceItem is a retrieved chunk believed relevant to a topic.
type EvidenceItem struct {
	Topic          Topic   `json:"topic"`
	ChunkID        string  `json:"chunk_id"`
	ChunkIndex     int     `json:"chunk_index"`
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevance_score"`
	// Query is the phrasing that produced RelevanceScore.
	Query string `json:"query,omitempty"`
}

// AgentFinding is a topic agent's structured output.
type AgentFinding struct {
	Topic         Topic                     `json:"topic"`
	Signals       map[SignalKey]SignalValue `json:"signals"`
	Narrative     string                    `json:"narrative"`
	ModelUsed     string                    `json:"model_used,omitempty"`
	Status        FindingStatus             `json:"status"`
	EvidenceCount int                       `json:"evidence_count"`
	// Citations maps a clause label (e.g. "indemnity") to the snippet the agent quoted.
	Citations map[string]string `json:"citations,omitempty"`
}

// Signal returns the value for key, or Unknown when the finding does not report it.
func (f *AgentFinding) Signal(key SignalKey) SignalValue {
	if f == nil || f.Signals == nil {
		return Unknown()
	}
	v, ok := f.Signals[key]
	if !ok {
		return Unknown()
	}
	return v
}
