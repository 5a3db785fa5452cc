package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/user/deskhand/internal/types"
)

// Chain runs handlers in order and stops at the first error. The trigger is
// done only when every handler reports done. Each non-empty note is passed
// on to the handlers that follow.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, t Trigger) (Outcome, error) {
		done := true
		for _, h := range handlers {
			out, err := h.Handle(ctx, t)
			if err != nil {
				return Outcome{}, err
			}
			done = done && out.Done
			if out.Note != "" {
				t.Notes = append(t.Notes, out.Note)
			}
		}
		return Outcome{Done: done, Note: strings.Join(t.Notes, "\n")}, nil
	})
}

// HistoryHandler records a processed task in the activity history. It is
// meant to run as Options.OnDone so a task that stays pending is not logged.
type HistoryHandler struct {
	Log types.HistoryLog
}

func (h *HistoryHandler) Handle(ctx context.Context, t Trigger) (Outcome, error) {
	entry := &types.HistoryEntry{
		Kind:   "task_processed",
		Source: t.Filename,
		Text:   t.Content,
	}
	if err := h.Log.Append(ctx, entry); err != nil {
		return Outcome{}, fmt.Errorf("append history: %w", err)
	}
	return Outcome{Done: true}, nil
}

// DraftHandler asks the responder for a reply draft and records it.
type DraftHandler struct {
	Responder types.Responder
	Log       types.HistoryLog
	// Recent, when set, supplies earlier drafts for the same sender as
	// conversation context.
	Recent RecentHistory
}

// RecentHistory returns the newest activity entries, oldest first.
type RecentHistory interface {
	Tail(ctx context.Context, limit int) ([]*types.HistoryEntry, error)
}

const draftContextEntries = 50

// priorDrafts returns the earlier draft exchanges with source, oldest first.
func (h *DraftHandler) priorDrafts(ctx context.Context, source string) []types.HistoryEntry {
	if h.Recent == nil {
		return nil
	}
	entries, err := h.Recent.Tail(ctx, draftContextEntries)
	if err != nil {
		return nil
	}
	var out []types.HistoryEntry
	for _, e := range entries {
		if e.Kind == "draft_reply" && e.Source == source {
			out = append(out, *e)
		}
	}
	return out
}

func (h *DraftHandler) Handle(ctx context.Context, t Trigger) (Outcome, error) {
	msg := t.Content
	source := t.Filename
	if t.Task != nil && t.Task.Body != "" {
		msg = fmt.Sprintf("New %s message from %s:\n%s", t.Task.Type, t.Task.Source, t.Task.Body)
		source = t.Task.Source
	}
	reply, err := h.Responder.Respond(ctx, msg, h.priorDrafts(ctx, source))
	if err != nil {
		return Outcome{}, fmt.Errorf("draft reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return Outcome{Done: false, Note: "empty draft"}, nil
	}
	if h.Log != nil {
		err := h.Log.Append(ctx, &types.HistoryEntry{
			Kind:   "draft_reply",
			Source: source,
			Text:   msg,
			Reply:  reply,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("append history: %w", err)
		}
	}
	return Outcome{Done: true, Note: "Draft: " + reply}, nil
}

// Broadcaster delivers a message to several forward targets.
type Broadcaster interface {
	Broadcast(ctx context.Context, targets []types.ForwardTarget, message string) error
}

// NotifyHandler tells the admin about high-priority tasks once they are
// handled. Delivery problems never keep a task pending.
type NotifyHandler struct {
	Delivery Broadcaster
	Targets  []types.ForwardTarget
}

var errNoTargets = errors.New("no notify targets")

func (h *NotifyHandler) Handle(ctx context.Context, t Trigger) (Outcome, error) {
	if t.Task == nil || t.Task.Priority != types.PriorityHigh {
		return Outcome{Done: true}, nil
	}
	if len(h.Targets) == 0 {
		return Outcome{Done: true, Note: errNoTargets.Error()}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Handled urgent %s task from %s (%s)", t.Task.Type, t.Task.Source, t.Filename)
	for _, n := range t.Notes {
		b.WriteString("\n" + n)
	}
	if err := h.Delivery.Broadcast(ctx, h.Targets, b.String()); err != nil {
		return Outcome{Done: true, Note: "notify failed: " + err.Error()}, nil
	}
	return Outcome{Done: true}, nil
}
