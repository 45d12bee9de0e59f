// Package llm is a client for OpenAI-compatible chat completion endpoints
// (Ollama, vLLM, hosted APIs).
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"baria-go/internal/config"
)

// MessageWriter receives streamed deltas; *websocket.Conn satisfies it.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client sends role-based messages to the model.
type Client interface {
	// Chat returns the complete answer.
	Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// StreamChat writes each delta to writer as a text message and returns the full answer.
	StreamChat(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) (string, error)
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient builds a chat client. Cancellation is left to the caller's context.
func NewClient(cfg config.LLMConfig) Client {
	return &openAIClient{cfg: cfg, client: &http.Client{}}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams overrides the configured generation settings when set.
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *openAIClient) newRequest(ctx context.Context, messages []Message, gen *GenerationParams, stream bool) (*http.Request, error) {
	body := chatRequest{Model: c.cfg.Model, Messages: messages, Stream: stream}
	if gen != nil {
		body.Temperature = gen.Temperature
		body.TopP = gen.TopP
		body.MaxTokens = gen.MaxTokens
	} else {
		if t := c.cfg.Generation.Temperature; t != 0 {
			body.Temperature = &t
		}
		if p := c.cfg.Generation.TopP; p != 0 {
			body.TopP = &p
		}
		if m := c.cfg.Generation.MaxTokens; m != 0 {
			body.MaxTokens = &m
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

func (c *openAIClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(msg))
	}
	return resp, nil
}

func (c *openAIClient) Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	req, err := c.newRequest(ctx, messages, gen, false)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *openAIClient) StreamChat(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) (string, error) {
	req, err := c.newRequest(ctx, messages, gen, true)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return full.String(), fmt.Errorf("failed to read from stream: %w", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), "data: "); ok {
			if strings.TrimSpace(data) == "[DONE]" {
				break
			}
			var chunk chatChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr == nil && len(chunk.Choices) > 0 {
				delta := chunk.Choices[0].Delta.Content
				if delta != "" {
					full.WriteString(delta)
					if werr := writer.WriteMessage(websocket.TextMessage, []byte(delta)); werr != nil {
						return full.String(), fmt.Errorf("failed to write message to websocket: %w", werr)
					}
				}
			}
		}
		if err == io.EOF {
			break
		}
	}
	return full.String(), nil
}
