package context

import (
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/deskhand/internal/types"
	"github.com/user/deskhand/pkg/llm"
)

// Options configures an Engine.
type Options struct {
	// Model selects the tokenizer. Unknown models use cl100k_base.
	Model string
	// MaxTokens is the model's context window size.
	MaxTokens int
	// Reserve is the number of tokens kept free for the model's reply.
	Reserve int
	// PromptPath overrides DefaultPrompt with a template file.
	PromptPath string
	// Owner is named in the system prompt.
	Owner  string
	Logger *slog.Logger
}

// Engine assembles token-budgeted prompts and drafts replies through an
// LLM provider.
type Engine struct {
	provider  llm.Provider
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
	owner     string
	prompt    *template.Template
	now       func() time.Time
}

var _ types.Responder = (*Engine)(nil)

// New creates an Engine. When no tokenizer can be loaded, token counts are
// estimated from the rune count.
func New(provider llm.Provider, opts Options) (*Engine, error) {
	tmpl, err := loadPrompt(opts.PromptPath)
	if err != nil {
		return nil, err
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 16000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	enc, err := tiktoken.EncodingForModel(opts.Model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			opts.Logger.Warn("tokenizer unavailable, estimating token counts", "component", "context", "error", err)
			enc = nil
		}
	}
	return &Engine{
		provider:  provider,
		tokenizer: enc,
		maxTokens: opts.MaxTokens,
		reserve:   opts.Reserve,
		owner:     opts.Owner,
		prompt:    tmpl,
		now:       time.Now,
	}, nil
}

// countTokens returns the token count for a string.
func (e *Engine) countTokens(text string) int {
	if e.tokenizer == nil {
		return utf8.RuneCountInString(text)/4 + 1
	}
	return len(e.tokenizer.Encode(text, nil, nil))
}

// BuildPrompt returns the system prompt, as much of history as fits the
// budget and message last. History is given oldest first; when it does not
// fit, the oldest entries are dropped.
func (e *Engine) BuildPrompt(message string, history []types.HistoryEntry) ([]llm.Message, error) {
	sysPrompt, err := renderPrompt(e.prompt, e.owner, e.now())
	if err != nil {
		return nil, err
	}
	budget := e.maxTokens - e.reserve - e.countTokens(sysPrompt) - e.countTokens(message)

	var kept [][]llm.Message
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		var pair []llm.Message
		cost := 0
		if h.Text != "" {
			pair = append(pair, llm.Message{Role: "user", Content: h.Text})
			cost += e.countTokens(h.Text)
		}
		if h.Reply != "" {
			pair = append(pair, llm.Message{Role: "assistant", Content: h.Reply})
			cost += e.countTokens(h.Reply)
		}
		if len(pair) == 0 {
			continue
		}
		if used+cost > budget {
			break
		}
		kept = append(kept, pair)
		used += cost
	}

	messages := []llm.Message{{Role: "system", Content: sysPrompt}}
	for i := len(kept) - 1; i >= 0; i-- {
		messages = append(messages, kept[i]...)
	}
	messages = append(messages, llm.Message{Role: "user", Content: message})
	return messages, nil
}

// Respond drafts a reply to message with history as prior exchanges.
func (e *Engine) Respond(ctx context.Context, message string, history []types.HistoryEntry) (string, error) {
	messages, err := e.BuildPrompt(message, history)
	if err != nil {
		return "", err
	}
	resp, err := e.provider.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return resp.Content, nil
}
