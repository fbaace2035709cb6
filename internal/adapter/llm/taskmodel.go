package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/config"
	"fcfilter/internal/infra/tracer"
)

// Compile-time interface assertions.
var (
	_ domain.LLMProvider   = (*TaskModelClient)(nil)
	_ domain.TextGenerator = (*TaskModelClient)(nil)
)

// Response shapes accepted from the /api/chat endpoint.
const (
	ShapeAuto   = "auto"
	ShapeOllama = "ollama"
	ShapeOpenAI = "openai"
)

// TaskModelClient talks to the auxiliary (task) model over the Ollama-style
// HTTP API. It does not retry; callers decide what a failure means.
type TaskModelClient struct {
	baseURL   string
	apiKey    string
	model     string
	shape     string
	keepAlive string
	timeout   time.Duration
	client    *http.Client
	logger    *slog.Logger
}

// NewTaskModelClient builds a client from the valves and aux settings.
func NewTaskModelClient(valves config.Valves, aux config.AuxConfig, logger *slog.Logger) *TaskModelClient {
	shape := aux.ResponseShape
	if shape == "" {
		shape = ShapeAuto
	}
	timeout := aux.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &TaskModelClient{
		baseURL:   strings.TrimRight(valves.OllamaAPIBaseURL, "/"),
		apiKey:    valves.OllamaAPIKey,
		model:     valves.TaskModel,
		shape:     shape,
		keepAlive: aux.KeepAlive,
		timeout:   timeout,
		client:    NewHTTPClient(aux),
		logger:    logger,
	}
}

// Name implements domain.LLMProvider.
func (c *TaskModelClient) Name() string { return "task:" + c.model }

// Model returns the configured task model name.
func (c *TaskModelClient) Model() string { return c.model }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatResponse covers both the native Ollama and the OpenAI-compatible shape.
type chatResponse struct {
	Model   string       `json:"model"`
	Message *wireMessage `json:"message"`
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

func (c *TaskModelClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// Chat sends one non-streaming chat request and returns the assistant text.
func (c *TaskModelClient) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.task_chat")
	model := req.Model
	if model == "" {
		model = c.model
	}
	span.SetAttributes(
		tracer.StringAttr("llm.model", model),
		tracer.IntAttr("llm.messages", len(req.Messages)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.chat(ctx, model, req.Messages)
	tracer.Finish(span, err)
	if err != nil {
		return nil, domain.WrapOp("TaskModelClient.Chat", err)
	}
	c.logger.DebugContext(ctx, "task model chat completed", "model", model, "bytes", len(resp.Content))
	return resp, nil
}

func (c *TaskModelClient) chat(ctx context.Context, model string, msgs []domain.Message) (*domain.ChatResponse, error) {
	wire := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		wire[i] = wireMessage{Role: m.Role, Content: m.Content.String()}
	}
	body, err := json.Marshal(chatRequest{Model: model, Messages: wire, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, c.client, c.baseURL+"/api/chat", body, c.headers())
	if err != nil {
		return nil, err
	}

	content, err := c.extractContent(respBody)
	if err != nil {
		return nil, err
	}
	return &domain.ChatResponse{Model: model, Content: content}, nil
}

// extractContent reads the assistant text according to the configured shape.
func (c *TaskModelClient) extractContent(body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrProviderError, err)
	}

	ollama := resp.Message != nil
	openai := len(resp.Choices) > 0

	switch {
	case c.shape != ShapeOpenAI && ollama:
		return resp.Message.Content, nil
	case c.shape != ShapeOllama && openai:
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("%w: response has no %s message content", domain.ErrProviderError, c.shape)
}

type generateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt,omitempty"`
	Stream    bool   `json:"stream"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate runs a single-prompt completion against /api/generate.
func (c *TaskModelClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.task_generate")
	span.SetAttributes(tracer.StringAttr("llm.model", c.model))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.generate(ctx, generateRequest{Model: c.model, Prompt: prompt})
	tracer.Finish(span, err)
	if err != nil {
		return "", domain.WrapOp("TaskModelClient.Generate", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *TaskModelClient) generate(ctx context.Context, req generateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	respBody, err := doJSONRequest(ctx, c.client, c.baseURL+"/api/generate", body, c.headers())
	if err != nil {
		return "", err
	}
	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrProviderError, err)
	}
	return resp.Response, nil
}

// Warmup asks the server to load the task model without generating, so the
// first inlet call does not pay the model load latency.
func (c *TaskModelClient) Warmup(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	keepAlive := c.keepAlive
	if keepAlive == "" {
		keepAlive = "5m"
	}
	if _, err := c.generate(ctx, generateRequest{Model: c.model, KeepAlive: keepAlive}); err != nil {
		return domain.WrapOp("TaskModelClient.Warmup", err)
	}
	c.logger.Info("task model warmed up", "model", c.model, "base_url", c.baseURL)
	return nil
}
