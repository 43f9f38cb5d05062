package llm

import "context"

// Context is the request payload for a completion: a system prompt plus
// chat-style history. Messages use {"role","content"} maps so adapters can
// pass them through without re-shaping.
type Context struct {
	Messages    []map[string]any
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Tokens       int
	Usage        Usage
	FinishReason string
}

type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Stream(ctx context.Context, input Context) (<-chan string, error)
	Name() string
}

// NewContext builds a Context from a system prompt, prior turns, and the
// current user input.
func NewContext(systemPrompt string, history []map[string]any, userInput string) Context {
	msgs := make([]map[string]any, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, map[string]any{"role": "system", "content": systemPrompt})
	}
	msgs = append(msgs, history...)
	if userInput != "" {
		msgs = append(msgs, map[string]any{"role": "user", "content": userInput})
	}
	return Context{Messages: msgs}
}
