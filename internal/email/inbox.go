// Package email provides the mail collaborator: an inbox fed by the ingest
// webhook and an SMTP sender for forwarding.
package email

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/deskhand/internal/types"
)

const (
	maxSnippetRunes = 200
	maxBodyChars    = 50000
)

var ErrNoSender = errors.New("no outgoing mail server configured")

// Sender delivers an outgoing message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Inbox queues pushed messages until the watcher has stored them.
type Inbox struct {
	mu     sync.Mutex
	items  []types.EmailItem
	ids    map[string]bool
	sender Sender
	now    func() time.Time
}

var _ types.EmailClient = (*Inbox)(nil)

// NewInbox creates an Inbox. sender may be nil, in which case Send fails.
func NewInbox(sender Sender) *Inbox {
	return &Inbox{
		ids:    make(map[string]bool),
		sender: sender,
		now:    time.Now,
	}
}

// Push queues item. Items without an id are rejected; an id already queued
// is ignored. Returns whether the item was queued.
func (in *Inbox) Push(item types.EmailItem) (bool, error) {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return false, errors.New("email id is required")
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = in.now()
	}
	if item.Snippet == "" {
		item.Snippet = Snippet(item.Body)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ids[item.ID] {
		return false, nil
	}
	in.ids[item.ID] = true
	in.items = append(in.items, item)
	return true, nil
}

// FetchUnread returns the queued messages. They stay queued until MarkRead
// is called for their id.
func (in *Inbox) FetchUnread(ctx context.Context) ([]types.EmailItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.items), nil
}

// MarkRead removes the message with id from the queue. Unknown ids are
// ignored.
func (in *Inbox) MarkRead(_ context.Context, id string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.ids[id] {
		return nil
	}
	delete(in.ids, id)
	in.items = slices.DeleteFunc(in.items, func(it types.EmailItem) bool { return it.ID == id })
	return nil
}

// Len returns the number of queued messages.
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.items)
}

func (in *Inbox) Send(ctx context.Context, to, subject, body string) error {
	if in.sender == nil {
		return ErrNoSender
	}
	return in.sender.Send(ctx, to, subject, body)
}

// HTMLToMarkdown converts an HTML mail body to markdown text.
func HTMLToMarkdown(html string) (string, error) {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if len(md) > maxBodyChars {
		md = md[:maxBodyChars] + "\n\n[Content truncated]"
	}
	return md, nil
}

// Snippet returns the first line-collapsed 200 runes of body.
func Snippet(body string) string {
	s := strings.Join(strings.Fields(body), " ")
	r := []rune(s)
	if len(r) > maxSnippetRunes {
		return string(r[:maxSnippetRunes])
	}
	return s
}
