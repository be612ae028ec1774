package openai_provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/models"
	"github.com/mohammad-safakhou/pagechat/provider"
)

// Options configures a client for an OpenAI-compatible endpoint.
type Options struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	Timeout        time.Duration
}

// Client implements provider.ChatModel and provider.Embedder over go-openai.
type Client struct {
	api            *openai.Client
	hasKey         bool
	embeddingModel string
	timeout        time.Duration
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	return &Client{
		api:            openai.NewClientWithConfig(cfg),
		hasKey:         opts.APIKey != "",
		embeddingModel: opts.EmbeddingModel,
		timeout:        opts.Timeout,
	}
}

var (
	_ provider.ChatModel = (*Client)(nil)
	_ provider.Embedder  = (*Client)(nil)
)

func (c *Client) Complete(ctx context.Context, messages []models.Message, params provider.Params) (string, error) {
	const op = "chat completion"
	if !c.hasKey {
		return "", apperr.New(apperr.KindAuth, op, "api key not configured")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       params.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: temperature(params.Temperature),
		MaxTokens:   params.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.KindAnswer, op, "no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "create embeddings"
	if len(texts) == 0 {
		return nil, nil
	}
	if !c.hasKey {
		return nil, apperr.New(apperr.KindAuth, op, "api key not configured")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, classify(op, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s: expected %d vectors, got %d", op, len(texts), len(resp.Data))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, d := range data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// temperature maps 0 to the smallest positive float32. go-openai omits a zero
// temperature from the request body and the provider would apply its own default.
func temperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classify maps rejected credentials to auth errors and deadlines to timeouts.
func classify(op string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return apperr.Wrap(apperr.KindAuth, op, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.KindTimeout, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
