package orchestrator

import (
	"fmt"

	"github.com/hyperjump/clausewise/internal/models"
)

// State is a topic's position in the analysis state machine.
type State string

const (
	StatePending          State = "PENDING"
	StateRetrieving       State = "RETRIEVING"
	StateInvoking         State = "INVOKING"
	StateSucceeded        State = "SUCCEEDED"
	StateExhausted        State = "EXHAUSTED"
	StateInsufficientData State = "INSUFFICIENT_DATA"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateInsufficientData
}

// TopicTrace records how one topic reached its terminal state.
type TopicTrace struct {
	Topic models.Topic `json:"topic"`
	State State        `json:"state"`
	// Path lists every state entered, with the model for INVOKING steps, e.g.
	// "INVOKING(google/gemma-2-2b-it)".
	Path          []string `json:"path"`
	Attempts      int      `json:"attempts"`
	ModelUsed     string   `json:"model_used,omitempty"`
	EvidenceCount int      `json:"evidence_count"`
	// Err is the reason the topic did not succeed, wrapping ErrInferenceExhausted when
	// every model failed.
	Err error `json:"-"`
}

// Error returns Err's message, or "".
func (t *TopicTrace) Error() string {
	if t.Err == nil {
		return ""
	}
	return t.Err.Error()
}

func (t *TopicTrace) enter(s State, model string) {
	t.State = s
	if s == StateInvoking {
		t.Path = append(t.Path, fmt.Sprintf("%s(%s)", s, model))
		return
	}
	t.Path = append(t.Path, string(s))
}
