package brain

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultMaxTokens is the trigger content budget when none is configured.
const DefaultMaxTokens = 64

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func loadEncoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, encErr
}

// Truncator cuts text to a token budget. Without a tokenizer it keeps four
// runes per token.
type Truncator struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
}

// NewTruncator uses the cl100k_base encoding. A load failure is logged and
// the rune approximation is used instead.
func NewTruncator(maxTokens int, logger *slog.Logger) *Truncator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	t := &Truncator{maxTokens: maxTokens}
	e, err := loadEncoding()
	if err != nil {
		if logger != nil {
			logger.Warn("tokenizer unavailable, truncating by runes", "error", err)
		}
		return t
	}
	t.enc = e
	return t
}

func (t *Truncator) Truncate(s string) string {
	if t.enc == nil {
		r := []rune(s)
		if n := 4 * t.maxTokens; len(r) > n {
			return string(r[:n])
		}
		return s
	}
	tokens := t.enc.Encode(s, nil, nil)
	if len(tokens) <= t.maxTokens {
		return s
	}
	return t.enc.Decode(tokens[:t.maxTokens])
}
