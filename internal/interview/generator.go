// Package interview adapts the external language-model backend that produces
// the interviewer's side of the dialogue. The backend is stateless per call;
// its failures are transient and never folded into session status.
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	"github.com/sashabaranov/go-openai"
)

// Generator produces the next interviewer turn from the dialogue so far.
type Generator interface {
	GenerateNextTurn(ctx context.Context, history []domain.Turn) (domain.Turn, error)
}

const defaultSystemPrompt = "You are a professional interviewer conducting a spoken interview. " +
	"Ask one concise question at a time, building on the candidate's previous answers."

// OpenAIGenerator implements Generator over the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	system string
}

// NewOpenAIGenerator builds a generator from environment configuration.
func NewOpenAIGenerator() (*OpenAIGenerator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("OPENAI_MODEL not set, defaulting", "model", model)
	}

	system := os.Getenv("INTERVIEWER_PROMPT")
	if system == "" {
		system = defaultSystemPrompt
	}

	slog.Info("Initializing interviewer backend", "model", model)
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
		system: system,
	}, nil
}

// GenerateNextTurn asks the model for the interviewer's next question given
// the dialogue history. Errors are retryable by the caller.
func (g *OpenAIGenerator) GenerateNextTurn(ctx context.Context, history []domain.Turn) (domain.Turn, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: g.system,
	})
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    chatRole(turn.Role),
			Content: turn.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		return domain.Turn{}, fmt.Errorf("interviewer backend call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Turn{}, fmt.Errorf("interviewer backend returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return domain.Turn{}, fmt.Errorf("interviewer backend returned empty content")
	}

	return domain.Turn{
		Role:      domain.RoleInterviewer,
		Content:   content,
		Timestamp: time.Now(),
	}, nil
}

func chatRole(role domain.Role) string {
	switch role {
	case domain.RoleInterviewer:
		return openai.ChatMessageRoleAssistant
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
