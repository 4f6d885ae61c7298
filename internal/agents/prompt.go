// Package agents renders topic prompts, parses model responses into validated findings,
// and builds the placeholder findings used when a topic cannot be analyzed.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/hyperjump/clausewise/internal/llm"
	"github.com/hyperjump/clausewise/internal/models"
	"github.com/hyperjump/clausewise/internal/topics"
)

const clauseSeparator = "\n---\n"

// FormatClauses renders evidence as the clause block of a prompt, one
// "Source (<query>):" section per item in relevance order.
func FormatClauses(evidence []*models.EvidenceItem) string {
	parts := make([]string, 0, len(evidence))
	for _, item := range evidence {
		source := item.Query
		if source == "" {
			source = string(item.Topic)
		}
		parts = append(parts, fmt.Sprintf("Source (%s):\n%s", source, item.Text))
	}
	return strings.Join(parts, clauseSeparator)
}

// BuildPrompt renders spec's templates with the evidence. Template variables are
// {topic} and {clauses}.
func BuildPrompt(ctx context.Context, spec topics.Spec, evidence []*models.EvidenceItem) (llm.Prompt, error) {
	var templates []schema.MessagesTemplate
	if spec.SystemPrompt != "" {
		templates = append(templates, schema.SystemMessage(spec.SystemPrompt))
	}
	templates = append(templates, schema.UserMessage(spec.PromptTemplate))

	msgs, err := prompt.FromMessages(schema.FString, templates...).Format(ctx, map[string]any{
		"topic":   string(spec.Topic),
		"clauses": FormatClauses(evidence),
	})
	if err != nil {
		return llm.Prompt{}, fmt.Errorf("render %s prompt: %w", spec.Topic, err)
	}
	var p llm.Prompt
	for _, m := range msgs {
		switch m.Role {
		case schema.System:
			p.System = m.Content
		case schema.User:
			p.User = m.Content
		}
	}
	return p, nil
}
