// Package topics holds the static registry of analysis topics: their query phrasings,
// prompt templates, and signal vocabulary. The registry is built once at startup and is
// read-only afterwards; adding a topic is a change to the table in defaults.go.
package topics

import (
	"fmt"

	"github.com/hyperjump/clausewise/internal/models"
)

// SignalSpec declares one signal an agent may report.
type SignalSpec struct {
	Key  models.SignalKey
	Kind models.SignalKind
	// Enum lists the allowed values for categorical signals. Empty means free-form.
	Enum []string
}

// Spec describes one topic agent.
type Spec struct {
	Topic models.Topic
	// QueryPhrasings are the canonical semantic queries used to retrieve evidence (1-3).
	QueryPhrasings []string
	// SystemPrompt and PromptTemplate are FString templates; {clauses} is replaced with the
	// rendered evidence and literal braces are written as {{ and }}.
	SystemPrompt   string
	PromptTemplate string
	Signals        []SignalSpec
}

// Signal returns the spec for key and whether it belongs to this topic's vocabulary.
func (s *Spec) Signal(key models.SignalKey) (SignalSpec, bool) {
	for _, sig := range s.Signals {
		if sig.Key == key {
			return sig, true
		}
	}
	return SignalSpec{}, false
}

// Registry is an ordered, immutable set of topic specs.
type Registry struct {
	specs []Spec
	index map[models.Topic]int
}

// NewRegistry validates specs and returns a registry preserving their order.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{
		specs: make([]Spec, 0, len(specs)),
		index: make(map[models.Topic]int, len(specs)),
	}
	for _, s := range specs {
		if s.Topic == "" {
			return nil, fmt.Errorf("topic name is required")
		}
		if _, dup := r.index[s.Topic]; dup {
			return nil, fmt.Errorf("duplicate topic: %s", s.Topic)
		}
		if n := len(s.QueryPhrasings); n < 1 || n > 3 {
			return nil, fmt.Errorf("topic %s: want 1-3 query phrasings, got %d", s.Topic, n)
		}
		if s.PromptTemplate == "" {
			return nil, fmt.Errorf("topic %s: prompt template is required", s.Topic)
		}
		seen := make(map[models.SignalKey]bool, len(s.Signals))
		for _, sig := range s.Signals {
			if seen[sig.Key] {
				return nil, fmt.Errorf("topic %s: duplicate signal %s", s.Topic, sig.Key)
			}
			seen[sig.Key] = true
			switch sig.Kind {
			case models.SignalBool, models.SignalNumber, models.SignalCategory:
			default:
				return nil, fmt.Errorf("topic %s: signal %s has invalid kind %q", s.Topic, sig.Key, sig.Kind)
			}
		}
		r.index[s.Topic] = len(r.specs)
		r.specs = append(r.specs, cloneSpec(s))
	}
	return r, nil
}

// Topics returns the topics in registry order.
func (r *Registry) Topics() []models.Topic {
	out := make([]models.Topic, len(r.specs))
	for i, s := range r.specs {
		out[i] = s.Topic
	}
	return out
}

// Lookup returns a copy of the spec for topic.
func (r *Registry) Lookup(topic models.Topic) (Spec, bool) {
	i, ok := r.index[topic]
	if !ok {
		return Spec{}, false
	}
	return cloneSpec(r.specs[i]), true
}

// Len returns the number of topics.
func (r *Registry) Len() int {
	return len(r.specs)
}

func cloneSpec(s Spec) Spec {
	s.QueryPhrasings = append([]string(nil), s.QueryPhrasings...)
	sigs := make([]SignalSpec, len(s.Signals))
	for i, sig := range s.Signals {
		sig.Enum = append([]string(nil), sig.Enum...)
		sigs[i] = sig
	}
	s.Signals = sigs
	return s
}
