package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/hyperjump/clausewise/internal/config"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var errEmptyResponse = errors.New("empty response")

// Generator is the part of an eino chat model the client uses.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// GeneratorFactory builds the generator for one model name.
type GeneratorFactory func(ctx context.Context, modelName string) (Generator, error)

// OpenAIFactory returns a factory for OpenAI-compatible chat endpoints (the Hugging Face
// router by default).
func OpenAIFactory(cfg config.AgentsConfig) GeneratorFactory {
	return func(ctx context.Context, modelName string) (Generator, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("agents.api_key (or %s) is required", config.EnvLLMAPIKey)
		}
		temperature := cfg.Temperature
		maxTokens := cfg.MaxTokens
		return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       modelName,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
			Timeout:     cfg.Timeout,
		})
	}
}

// ChatClient implements Client over eino chat models. Models are created lazily and each
// model has its own circuit breaker, so a model that keeps failing is skipped quickly
// until its breaker half-opens.
type ChatClient struct {
	factory GeneratorFactory
	timeout time.Duration
	breaker config.BreakerConfig
	logger  *zap.Logger

	mu         sync.Mutex
	generators map[string]Generator
	breakers   map[string]*gobreaker.CircuitBreaker
}

// ChatOption configures a ChatClient.
type ChatOption func(*ChatClient)

// WithLogger sets a logger for breaker state changes and failures.
func WithLogger(l *zap.Logger) ChatOption {
	return func(c *ChatClient) { c.logger = l }
}

// WithGeneratorFactory replaces the OpenAI-compatible factory.
func WithGeneratorFactory(f GeneratorFactory) ChatOption {
	return func(c *ChatClient) { c.factory = f }
}

// NewChatClient creates a client from agent settings.
func NewChatClient(cfg config.AgentsConfig, opts ...ChatOption) *ChatClient {
	c := &ChatClient{
		factory:    OpenAIFactory(cfg),
		timeout:    cfg.Timeout,
		breaker:    cfg.Breaker,
		logger:     zap.NewNop(),
		generators: make(map[string]Generator),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke sends prompt to modelName. Every failure except caller cancellation wraps
// ErrInferenceFailure.
func (c *ChatClient) Invoke(ctx context.Context, modelName string, prompt Prompt) (string, error) {
	gen, err := c.generator(ctx, modelName)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInferenceFailure, modelName, err)
	}
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := make([]*schema.Message, 0, 2)
	if prompt.System != "" {
		messages = append(messages, schema.SystemMessage(prompt.System))
	}
	messages = append(messages, schema.UserMessage(prompt.User))

	out, err := c.breakerFor(modelName).Execute(func() (interface{}, error) {
		msg, err := gen.Generate(callCtx, messages)
		if err != nil {
			return nil, err
		}
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			return nil, errEmptyResponse
		}
		return msg.Content, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		c.logger.Debug("llm call failed", zap.String("model", modelName), zap.Error(err))
		return "", fmt.Errorf("%w: %s: %w", ErrInferenceFailure, modelName, err)
	}
	return out.(string), nil
}

func (c *ChatClient) generator(ctx context.Context, modelName string) (Generator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.generators[modelName]; ok {
		return g, nil
	}
	g, err := c.factory(ctx, modelName)
	if err != nil {
		return nil, err
	}
	c.generators[modelName] = g
	return g, nil
}

func (c *ChatClient) breakerFor(modelName string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[modelName]; ok {
		return cb
	}
	maxFailures := c.breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        modelName,
		MaxRequests: 1,
		Timeout:     c.breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Caller cancellation says nothing about the model's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("llm circuit breaker state change",
				zap.String("model", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	c.breakers[modelName] = cb
	return cb
}
