package provider

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/pagechat/models"
)

// Params tunes a single chat completion.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatModel is a hosted chat-completion model.
type ChatModel interface {
	Complete(ctx context.Context, messages []models.Message, params Params) (string, error)
}

// Embedder turns texts into vectors. Output order matches input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Client names a provider backend.
type Client string

const OpenAI Client = "openai"

// ParseClient validates a provider name.
func ParseClient(name string) (Client, error) {
	switch Client(name) {
	case OpenAI, "":
		return OpenAI, nil
	default:
		return "", fmt.Errorf("unsupported llm provider %q", name)
	}
}
