// Package llm invokes chat models for the topic agents. A failed call is reported as
// ErrInferenceFailure so callers can move on to the next model in their fallback list.
package llm

import (
	"context"
	"errors"
)

// ErrInferenceFailure marks a transient or service-side failure of one model call.
var ErrInferenceFailure = errors.New("inference failed")

// Prompt is a rendered system + user message pair.
type Prompt struct {
	System string
	User   string
}

// Client invokes a named model with a prompt and returns the raw response text.
type Client interface {
	Invoke(ctx context.Context, model string, prompt Prompt) (string, error)
}
