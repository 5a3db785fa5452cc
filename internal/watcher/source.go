package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/user/deskhand/internal/dedup"
	"github.com/user/deskhand/internal/messaging"
	"github.com/user/deskhand/internal/types"
)

// Item is one observed message ready to become a task.
type Item struct {
	Type    types.TaskType
	Key     types.DedupKey
	Source  string
	Body    string
	Payload any
	// Ref is the source's own id for the item, handed back through Ack.
	Ref string
}

// Source is something the orchestrator polls.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Item, error)
}

// Acker is implemented by sources that keep returning an item until it is
// acknowledged. The orchestrator acks an item once its task is stored or
// its key was already claimed.
type Acker interface {
	Ack(ctx context.Context, it Item) error
}

// readMarker is the optional part of an email client that can take a
// message out of the unread set.
type readMarker interface {
	MarkRead(ctx context.Context, id string) error
}

// ChannelSource polls a messaging channel for keyword-matching conversations.
type ChannelSource struct {
	Channel      messaging.Channel
	Type         types.TaskType
	Options      types.CheckOptions
	PreviewChars int
}

func (s *ChannelSource) Name() string { return s.Channel.Name() }

func (s *ChannelSource) Fetch(ctx context.Context) ([]Item, error) {
	res := s.Channel.CheckMessages(ctx, s.Options)
	if !res.Success {
		if res.Error == "" {
			res.Error = "check failed"
		}
		return nil, errors.New(res.Error)
	}
	items := make([]Item, 0, len(res.Messages))
	for _, m := range res.Messages {
		items = append(items, Item{
			Type:    s.Type,
			Key:     dedup.MessageKey(s.Channel.Name(), m.Title, m.Preview, s.PreviewChars),
			Source:  m.Title,
			Body:    m.Preview,
			Payload: m,
		})
	}
	return items, nil
}

// EmailSource polls the mail collaborator. With keywords set, only messages
// whose subject, snippet or body mention one of them are returned; the rest
// are marked read when the client supports it.
type EmailSource struct {
	Client   types.EmailClient
	Keywords []string
}

func (s *EmailSource) Name() string { return "email" }

func (s *EmailSource) Fetch(ctx context.Context) ([]Item, error) {
	mails, err := s.Client.FetchUnread(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}
	var items []Item
	for _, m := range mails {
		if !matchesAny(m.Subject+"\n"+m.Snippet+"\n"+m.Body, s.Keywords) {
			if err := s.markRead(ctx, m.ID); err != nil {
				return nil, err
			}
			continue
		}
		body := m.Body
		if body == "" {
			body = m.Snippet
		}
		items = append(items, Item{
			Type:    types.TaskEmail,
			Key:     dedup.EmailKey(m.ID),
			Source:  m.From,
			Body:    body,
			Payload: m,
			Ref:     m.ID,
		})
	}
	return items, nil
}

func (s *EmailSource) Ack(ctx context.Context, it Item) error {
	return s.markRead(ctx, it.Ref)
}

func (s *EmailSource) markRead(ctx context.Context, id string) error {
	rm, ok := s.Client.(readMarker)
	if !ok {
		return nil
	}
	if err := rm.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("mark %s read: %w", id, err)
	}
	return nil
}

func matchesAny(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	hay := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(hay, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
