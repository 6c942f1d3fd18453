package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	genai "google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

var ErrNoAPIKeys = errors.New("insights: no API keys configured")

// Generator is the external text-generation collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls the Gemini API through the official genai client.
// It holds one client per API key and moves to the next key when the
// current one is rate limited or failing.
type GeminiGenerator struct {
	model   string
	clients []*genai.Client
	logger  *slog.Logger

	mu      sync.Mutex
	current int
}

func NewGeminiGenerator(ctx context.Context, apiKeys []string, model string, logger *slog.Logger) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultModel
	}
	var clients []*genai.Client
	for _, key := range apiKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cli, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		clients = append(clients, cli)
	}
	if len(clients) == 0 {
		return nil, ErrNoAPIKeys
	}
	return &GeminiGenerator{model: model, clients: clients, logger: logger}, nil
}

func (g *GeminiGenerator) Name() string { return "Gemini:" + g.model }

// Generate tries each key at most once, starting from the last key that
// worked. The error of the final attempt is returned when all fail.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	start := g.current
	g.mu.Unlock()

	var last *AiError
	for i := range g.clients {
		idx := (start + i) % len(g.clients)
		text, err := g.generateWith(ctx, g.clients[idx], prompt)
		if err == nil {
			g.mu.Lock()
			g.current = idx
			g.mu.Unlock()
			return text, nil
		}

		last = classify(err)
		if !last.Retryable() || ctx.Err() != nil {
			return "", last
		}
		g.logger.Warn("gemini key failed, rotating",
			"key_index", idx,
			"kind", last.Kind.String(),
			"error", err,
		)
	}
	return "", last
}

func (g *GeminiGenerator) generateWith(ctx context.Context, cli *genai.Client, prompt string) (string, error) {
	resp, err := cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
