// Package openai calls the OpenAI chat completions API, both one-shot and
// streamed over SSE.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parryvoice/parry/pkg/llm"
	"github.com/parryvoice/parry/pkg/resilience"
)

const completionsPath = "/chat/completions"

type Adapter struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

func NewAdapter(apiKey, model string) *Adapter {
	return &Adapter{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://api.openai.com/v1",
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *Adapter) Name() string { return "openai" }

// Wire shapes for the completions endpoint. Only the fields this engine
// reads are declared.
type completionRequest struct {
	Model         string           `json:"model"`
	Stream        bool             `json:"stream"`
	Messages      []map[string]any `json:"messages"`
	Temperature   float64          `json:"temperature,omitempty"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	StreamOptions *streamOptions   `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	resp, err := a.post(ctx, input, false)
	if err != nil {
		return llm.Response{}, err
	}
	defer resp.Body.Close()

	var payload completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return llm.Response{}, err
	}
	if len(payload.Choices) == 0 {
		return llm.Response{}, errors.New("no choices")
	}
	out := llm.Response{
		Text:         payload.Choices[0].Message.Content,
		FinishReason: payload.Choices[0].FinishReason,
	}
	if u := payload.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
		out.Tokens = u.TotalTokens
	}
	return out, nil
}

// Stream issues a streaming completion and forwards content deltas as they
// arrive. The channel closes on [DONE], stream end, or context cancel.
func (a *Adapter) Stream(ctx context.Context, input llm.Context) (<-chan string, error) {
	resp, err := a.post(ctx, input, true)
	if err != nil {
		return nil, err
	}

	out := make(chan string, 128)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			delta, done := parseSSELine(scanner.Text())
			if done {
				return
			}
			if delta == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- delta:
			}
		}
	}()
	return out, nil
}

// parseSSELine extracts the content delta from one "data:" line. done is
// true on the [DONE] sentinel.
func parseSSELine(line string) (delta string, done bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		return "", true
	}
	var chunk completionResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil || len(chunk.Choices) == 0 {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, false
}

// post sends the request and maps HTTP-level failures. The caller owns the
// returned body.
func (a *Adapter) post(ctx context.Context, input llm.Context, stream bool) (*http.Response, error) {
	payload := completionRequest{
		Model:       a.Model,
		Stream:      stream,
		Messages:    input.Messages,
		Temperature: input.Temperature,
		MaxTokens:   input.MaxTokens,
	}
	if stream {
		payload.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.APIKey)

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, resilience.RateLimitError{Provider: "openai", Message: string(msg)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("openai: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

var _ llm.LLMAdapter = (*Adapter)(nil)
