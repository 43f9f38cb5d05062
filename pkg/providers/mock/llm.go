package mock

import (
	"context"
	"sync"

	"github.com/parryvoice/parry/pkg/llm"
)

type LLMConfig struct {
	ResponseText string
	StreamChunks []string
	Err          error
}

// LLMAdapter returns canned completions for offline runs and tests.
type LLMAdapter struct {
	cfg LLMConfig

	mu    sync.Mutex
	calls []llm.Context
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(_ context.Context, input llm.Context) (llm.Response, error) {
	a.mu.Lock()
	a.calls = append(a.calls, input)
	a.mu.Unlock()
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	return llm.Response{Text: a.cfg.ResponseText}, nil
}

func (a *LLMAdapter) Stream(_ context.Context, input llm.Context) (<-chan string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, input)
	a.mu.Unlock()
	if a.cfg.Err != nil {
		return nil, a.cfg.Err
	}
	out := make(chan string, len(a.cfg.StreamChunks)+1)
	if len(a.cfg.StreamChunks) > 0 {
		for _, chunk := range a.cfg.StreamChunks {
			out <- chunk
		}
	} else {
		out <- a.cfg.ResponseText
	}
	close(out)
	return out, nil
}

// Calls returns every request seen so far.
func (a *LLMAdapter) Calls() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Context, len(a.calls))
	copy(out, a.calls)
	return out
}
