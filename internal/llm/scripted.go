package llm

import (
	"context"
	"fmt"
	"sync"
)

// Reply is a canned model response.
type Reply struct {
	Text string
	Err  error
}

// Call records one Invoke.
type Call struct {
	Model  string
	Prompt Prompt
}

// ScriptedClient answers from a fixed per-model script or a handler function. It is used
// in tests and as the offline client when no inference endpoint is configured.
type ScriptedClient struct {
	mu      sync.Mutex
	replies map[string]Reply
	handler func(model string, prompt Prompt) (string, error)
	calls   []Call
}

// NewScriptedClient returns a client that answers each model with its reply. Models
// missing from replies fail with ErrInferenceFailure.
func NewScriptedClient(replies map[string]Reply) *ScriptedClient {
	return &ScriptedClient{replies: replies}
}

// NewFuncClient returns a client that delegates every call to fn.
func NewFuncClient(fn func(model string, prompt Prompt) (string, error)) *ScriptedClient {
	return &ScriptedClient{handler: fn}
}

// Invoke records the call and returns the scripted reply.
func (s *ScriptedClient) Invoke(ctx context.Context, model string, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.calls = append(s.calls, Call{Model: model, Prompt: prompt})
	handler := s.handler
	reply, ok := s.replies[model]
	s.mu.Unlock()

	if handler != nil {
		return handler(model, prompt)
	}
	if !ok {
		return "", fmt.Errorf("%w: no script for model %s", ErrInferenceFailure, model)
	}
	return reply.Text, reply.Err
}

// Calls returns a copy of the recorded calls in order.
func (s *ScriptedClient) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many times model was invoked.
func (s *ScriptedClient) CallCount(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Model == model {
			n++
		}
	}
	return n
}
