// Package ai answers free-text project questions through a configurable
// model provider.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/fentz26/pulsebot/internal/config"
)

const systemPrompt = "You are a project assistant for a software team. " +
	"Answer questions about task status, deadlines, and team progress " +
	"using only the project snapshot provided. Keep answers short and " +
	"concrete. If the snapshot does not contain the answer, say so."

// Responder produces a natural-language answer to a question, given a
// snapshot of the current project state.
type Responder interface {
	Answer(ctx context.Context, question, snapshot string) (string, error)
	ModelName() string
}

// NewFromConfig builds the configured responder. An empty API key disables
// the feature and returns nil with no error.
func NewFromConfig(cfg config.AIConfig) (Responder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "", "openai":
		return newOpenAI(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		return newAnthropic(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

func buildPrompt(question, snapshot string) string {
	var b strings.Builder
	b.WriteString("Project snapshot:\n")
	b.WriteString(snapshot)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
