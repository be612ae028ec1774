package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/provider"
)

const (
	rephrasePrompt = "Given the above conversation, generate a search query to look up in order to get information relevant to the conversation"
	contextPrompt  = "Answer the user's questions based on the below context:\n\n"
)

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.Chunk, error)
}

// Strategy produces one grounded answer.
type Strategy interface {
	Name() string
	Answer(ctx context.Context, question string, retriever Retriever, history []models.Turn) (string, error)
}

// HistoryAware rewrites a follow-up question into a standalone search query before
// retrieving. An empty history skips the rewrite.
type HistoryAware struct {
	Model  provider.ChatModel
	Params provider.Params
	TopK   int
}

func (HistoryAware) Name() string { return "history_aware" }

func (h HistoryAware) Answer(ctx context.Context, question string, retriever Retriever, history []models.Turn) (string, error) {
	query := question
	if len(history) > 0 {
		messages := models.TurnsToMessages(history)
		messages = append(messages,
			models.Message{Role: models.RoleUser, Content: question},
			models.Message{Role: models.RoleUser, Content: rephrasePrompt},
		)
		rewritten, err := h.Model.Complete(ctx, messages, h.Params)
		if err != nil {
			return "", fmt.Errorf("rephrase question: %w", err)
		}
		if q := strings.TrimSpace(rewritten); q != "" {
			query = q
		}
	}
	return grounded(ctx, h.Model, h.Params, retriever, h.TopK, query, question, history)
}

// Simple retrieves with the question as asked.
type Simple struct {
	Model  provider.ChatModel
	Params provider.Params
	TopK   int
}

func (Simple) Name() string { return "simple" }

func (s Simple) Answer(ctx context.Context, question string, retriever Retriever, history []models.Turn) (string, error) {
	return grounded(ctx, s.Model, s.Params, retriever, s.TopK, question, question, history)
}

func grounded(ctx context.Context, model provider.ChatModel, params provider.Params, retriever Retriever, k int, query, question string, history []models.Turn) (string, error) {
	chunks, err := retriever.Retrieve(ctx, query, k)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	messages := BuildMessages(chunks, history, question)
	out, err := model.Complete(ctx, messages, params)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return out, nil
}

// BuildMessages lays out the final prompt: context instruction, prior turns, question.
func BuildMessages(chunks []models.Chunk, history []models.Turn, question string) []models.Message {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	messages := make([]models.Message, 0, len(history)+2)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: contextPrompt + strings.Join(texts, "\n\n")})
	messages = append(messages, models.TurnsToMessages(history)...)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: question})
	return messages
}
