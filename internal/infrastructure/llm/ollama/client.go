package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Embedder calls /api/embed through the given executor. Build and query paths use
// separate executors so query calls can run with a single attempt.
type Embedder struct {
	client   *Client
	executor *resilience.Executor
}

func NewEmbedder(client *Client, executor *resilience.Executor) *Embedder {
	return &Embedder{client: client, executor: executor}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var vectors [][]float32
	err := e.run(ctx, "ollama_embed", func(callCtx context.Context) error {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.postJSON(callCtx, "/api/embed", request, &response, "embed"); err != nil {
			return err
		}
		if err := checkVectors(response.Embeddings, len(texts)); err != nil {
			return err
		}
		vectors = response.Embeddings
		return nil
	})
	if err != nil {
		return nil, embedFailure("embed", err)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) run(ctx context.Context, op string, fn func(context.Context) error) error {
	if e.executor == nil {
		return fn(ctx)
	}
	return e.executor.Execute(ctx, op, fn, classifyOllamaError)
}

type Generator struct {
	client   *Client
	executor *resilience.Executor
}

func NewGenerator(client *Client, executor *resilience.Executor) *Generator {
	return &Generator{client: client, executor: executor}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, records []domain.Record) (string, error) {
	prompt := buildAnswerPrompt(question, records)
	if g.executor == nil {
		text, err := g.client.generateText(ctx, prompt)
		return text, generateFailure(err)
	}
	text, err := resilience.Call(ctx, g.executor, "ollama_generate", func(callCtx context.Context) (string, error) {
		return g.client.generateText(callCtx, prompt)
	}, classifyOllamaError)
	if err != nil {
		return "", generateFailure(err)
	}
	return text, nil
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": 0,
		},
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
