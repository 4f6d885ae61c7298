// Package orchestrator drives every registry topic through retrieval and model inference
// in parallel, with ordered model fallback per topic, and merges the findings.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/clausewise/internal/agents"
	"github.com/hyperjump/clausewise/internal/llm"
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/topics"
	"go.uber.org/zap"
)

var (
	// ErrInferenceExhausted is recorded in a topic's trace when every fallback model failed.
	ErrInferenceExhausted = errors.New("inference exhausted: every fallback model failed")
	// ErrInvalidFindings means the merged findings do not hold exactly one finding per topic.
	ErrInvalidFindings = errors.New("invalid findings set")
	// ErrNoModels is returned when the fallback list is empty.
	ErrNoModels = errors.New("fallback model list is empty")
)

// Retriever supplies evidence for one topic of one document.
type Retriever interface {
	Retrieve(ctx context.Context, documentID string, topic models.Topic) ([]*models.EvidenceItem, error)
}

// Run is the outcome of one orchestration: findings in registry order plus per-topic traces.
type Run struct {
	DocumentID string
	Findings   []*models.AgentFinding
	Traces     []TopicTrace
}

// Orchestrator runs the topic agents.
type Orchestrator struct {
	registry  *topics.Registry
	retriever Retriever
	client    llm.Client
	models    []string
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a logger; transitions are logged at debug and exhaustion at warn.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator. fallbackModels are tried in order for every topic.
func New(registry *topics.Registry, retriever Retriever, client llm.Client, fallbackModels []string, opts ...Option) (*Orchestrator, error) {
	if len(fallbackModels) == 0 {
		return nil, ErrNoModels
	}
	o := &Orchestrator{
		registry:  registry,
		retriever: retriever,
		client:    client,
		models:    append([]string(nil), fallbackModels...),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run analyzes documentID. Every topic runs in its own goroutine and a failing topic
// never cancels the others; Run waits for all of them. If ctx is done by then, Run
// returns ctx.Err() and no findings.
func (o *Orchestrator) Run(ctx context.Context, documentID string) (*Run, error) {
	topicList := o.registry.Topics()
	findings := make([]*models.AgentFinding, len(topicList))
	traces := make([]TopicTrace, len(topicList))

	var wg sync.WaitGroup
	for i, topic := range topicList {
		spec, _ := o.registry.Lookup(topic)
		wg.Add(1)
		go func(i int, spec topics.Spec) {
			defer wg.Done()
			findings[i], traces[i] = o.runTopicSafe(ctx, documentID, spec)
		}(i, spec)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		o.logger.Info("orchestrator run cancelled", zap.String("doc_id", documentID), zap.Error(err))
		return nil, err
	}
	if err := ValidateFindings(o.registry, findings); err != nil {
		return nil, err
	}
	return &Run{DocumentID: documentID, Findings: findings, Traces: traces}, nil
}

// runTopicSafe contains a panicking topic to a degraded finding.
func (o *Orchestrator) runTopicSafe(ctx context.Context, documentID string, spec topics.Spec) (f *models.AgentFinding, tr TopicTrace) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("topic %s panicked: %v", spec.Topic, r)
			o.logger.Error("orchestrator topic panicked", zap.String("topic", string(spec.Topic)), zap.Error(err))
			tr.enter(StateExhausted, "")
			tr.Err = err
			f = agents.Degraded(spec, err, tr.Attempts, tr.EvidenceCount)
		}
	}()
	f = o.runTopic(ctx, documentID, spec, &tr)
	return f, tr
}

// runTopic is the per-topic state machine:
// PENDING -> RETRIEVING -> INVOKING(model_i) -> SUCCEEDED | INVOKING(model_i+1) | EXHAUSTED,
// or RETRIEVING -> INSUFFICIENT_DATA when there is no evidence.
func (o *Orchestrator) runTopic(ctx context.Context, documentID string, spec topics.Spec, tr *TopicTrace) *models.AgentFinding {
	tr.Topic = spec.Topic
	log := o.logger.With(zap.String("doc_id", documentID), zap.String("topic", string(spec.Topic)))
	o.transition(log, tr, StatePending, "")

	o.transition(log, tr, StateRetrieving, "")
	evidence, err := o.retriever.Retrieve(ctx, documentID, spec.Topic)
	if err != nil {
		o.transition(log, tr, StateExhausted, "")
		tr.Err = fmt.Errorf("retrieval: %w", err)
		log.Warn("orchestrator retrieval failed", zap.Error(err))
		return agents.Degraded(spec, tr.Err, 0, 0)
	}
	tr.EvidenceCount = len(evidence)
	if len(evidence) == 0 {
		o.transition(log, tr, StateInsufficientData, "")
		return agents.InsufficientData(spec)
	}

	prompt, err := agents.BuildPrompt(ctx, spec, evidence)
	if err != nil {
		o.transition(log, tr, StateExhausted, "")
		tr.Err = err
		log.Error("orchestrator prompt rendering failed", zap.Error(err))
		return agents.Degraded(spec, err, 0, len(evidence))
	}

	var lastErr error
	for _, model := range o.models {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		o.transition(log, tr, StateInvoking, model)
		tr.Attempts++
		raw, err := o.client.Invoke(ctx, model, prompt)
		if err != nil {
			lastErr = err
			log.Debug("orchestrator model failed", zap.String("model", model), zap.Error(err))
			continue
		}
		parsed, err := agents.ParseResponse(spec, raw)
		if err != nil {
			lastErr = err
			log.Debug("orchestrator malformed response", zap.String("model", model), zap.Error(err))
			continue
		}
		o.transition(log, tr, StateSucceeded, "")
		tr.ModelUsed = model
		return agents.FromParsed(spec, parsed, model, len(evidence))
	}

	o.transition(log, tr, StateExhausted, "")
	tr.Err = fmt.Errorf("%w: %w", ErrInferenceExhausted, lastErr)
	log.Warn("orchestrator fallback list exhausted", zap.Int("attempts", tr.Attempts), zap.Error(lastErr))
	return agents.Degraded(spec, lastErr, tr.Attempts, len(evidence))
}

func (o *Orchestrator) transition(log *zap.Logger, tr *TopicTrace, s State, model string) {
	tr.enter(s, model)
	if model != "" {
		log.Debug("orchestrator transition", zap.String("state", string(s)), zap.String("model", model))
		return
	}
	log.Debug("orchestrator transition", zap.String("state", string(s)))
}

// ValidateFindings checks that findings hold exactly one non-nil finding per registry
// topic, in registry order.
func ValidateFindings(registry *topics.Registry, findings []*models.AgentFinding) error {
	want := registry.Topics()
	if len(findings) != len(want) {
		return fmt.Errorf("%w: %d findings for %d topics", ErrInvalidFindings, len(findings), len(want))
	}
	for i, topic := range want {
		f := findings[i]
		if f == nil {
			return fmt.Errorf("%w: missing finding for %s", ErrInvalidFindings, topic)
		}
		if f.Topic != topic {
			return fmt.Errorf("%w: position %d holds %s, want %s", ErrInvalidFindings, i, f.Topic, topic)
		}
	}
	return nil
}
