package llm

import (
	"context"
	"errors"
	"fmt"
	"freight-route-service/internal/platform/httpx"
	"freight-route-service/internal/platform/obs"
	"freight-route-service/internal/ports"
	"net/http"
	"strings"
	"time"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You are a logistics analyst. Answer with a single JSON object and nothing else."

// ChatClient calls an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	client *httpx.Client
}

func NewChatClient(baseURL, apiKey string, timeout time.Duration) (*ChatClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("new chat client: base url is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("new chat client: api key is required")
	}

	c := httpx.NewClient(baseURL, timeout)
	c.MaxAttempts = 2
	c.Headers["Authorization"] = "Bearer " + apiKey
	return &ChatClient{client: c}, nil
}

func (c *ChatClient) Generate(ctx context.Context, req ports.GenerateRequest) (_ string, err error) {
	defer obs.Time(ctx, "llm.generate")(&err)

	body := chatRequest{
		Model: req.ModelID,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var resp chatResponse
	if err := c.client.DoJSON(ctx, http.MethodPost, "/v1/chat/completions", body, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
