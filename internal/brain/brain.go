// Package brain consumes pending task files and hands each one to a trigger
// handler.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/user/deskhand/internal/scheduler"
	"github.com/user/deskhand/internal/taskfile"
	"github.com/user/deskhand/internal/types"
)

// Policy decides when a handled task leaves Needs_Action.
type Policy string

const (
	// PolicyRetry moves a task only when the handler succeeded and reported
	// the task as done.
	PolicyRetry Policy = "retry"
	// PolicyBestEffort moves a task whenever the handler returned without error.
	PolicyBestEffort Policy = "best_effort"
)

// ParsePolicy maps a config value to a Policy. Empty means PolicyRetry.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyRetry:
		return PolicyRetry, nil
	case PolicyBestEffort:
		return PolicyBestEffort, nil
	}
	return "", fmt.Errorf("unknown brain policy: %s", s)
}

// Trigger is what a handler sees of one pending task.
type Trigger struct {
	Type     types.TaskType
	Filename string
	// Content is the raw file truncated to the configured token budget.
	Content string
	// Task is nil when the front matter could not be parsed.
	Task *types.TaskFile
	// Notes collects the notes of the handlers that ran before in a Chain.
	Notes []string
}

// Outcome reports what a handler did with a trigger.
type Outcome struct {
	Done bool
	Note string
}

type Handler interface {
	Handle(ctx context.Context, t Trigger) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t Trigger) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, t Trigger) (Outcome, error) { return f(ctx, t) }

// Store is the part of the vault the brain uses.
type Store interface {
	ListPending() ([]string, error)
	Read(name string) ([]byte, error)
	MoveToDone(name string) error
	MoveToFailed(name string) error
}

type Options struct {
	Store   Store
	Handler Handler
	// OnDone runs once a task has been moved to Done. Its errors are logged
	// and never move the task back.
	OnDone Handler
	Policy Policy
	// MaxAttempts moves a task to Failed after that many unsuccessful
	// attempts in this process. Zero keeps retrying forever.
	MaxAttempts int
	// MaxTokens bounds Trigger.Content.
	MaxTokens int
	Logger    *slog.Logger
}

// Brain is the consumer loop over the vault.
type Brain struct {
	opts     Options
	logger   *slog.Logger
	truncate *Truncator

	mu       sync.Mutex
	attempts map[string]int
}

// Report summarizes one tick.
type Report struct {
	Done   []string
	Kept   []string
	Failed []string
}

func New(opts Options) *Brain {
	if opts.Policy == "" {
		opts.Policy = PolicyRetry
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "brain")
	return &Brain{
		opts:     opts,
		logger:   logger,
		truncate: NewTruncator(opts.MaxTokens, logger),
		attempts: make(map[string]int),
	}
}

// Schedule registers the tick on s.
func (b *Brain) Schedule(s *scheduler.Scheduler, every time.Duration) {
	b.logger.Info("brain online", "policy", b.opts.Policy, "every", every)
	s.Every("brain", every, func(ctx context.Context) { b.Tick(ctx) })
}

// Tick handles every pending task once. A failing task stays pending and is
// presented again on the next tick.
func (b *Brain) Tick(ctx context.Context) Report {
	var rep Report
	names, err := b.opts.Store.ListPending()
	if err != nil {
		b.logger.Error("list pending failed", "error", err)
		return rep
	}
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		switch b.process(ctx, name) {
		case resultDone:
			rep.Done = append(rep.Done, name)
		case resultFailed:
			rep.Failed = append(rep.Failed, name)
		default:
			rep.Kept = append(rep.Kept, name)
		}
	}
	return rep
}

type result int

const (
	resultKept result = iota
	resultDone
	resultFailed
)

func (b *Brain) process(ctx context.Context, name string) (res result) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic", "file", name, "panic", r, "stack", string(debug.Stack()))
			res = b.fail(name)
		}
	}()

	data, err := b.opts.Store.Read(name)
	if err != nil {
		b.logger.Error("read task failed", "file", name, "error", err)
		return b.fail(name)
	}

	trigger := Trigger{Filename: name, Content: b.truncate.Truncate(string(data))}
	if task, err := taskfile.Parse(data); err == nil {
		trigger.Task = task
		trigger.Type = task.Type
	} else {
		b.logger.Warn("unreadable front matter", "file", name, "error", err)
		trigger.Type = taskfile.SniffType(data)
	}

	b.logger.Info("processing task", "file", name, "type", trigger.Type)
	out, err := b.opts.Handler.Handle(ctx, trigger)
	if err != nil {
		b.logger.Warn("handler failed", "file", name, "error", err)
		return b.fail(name)
	}
	if !out.Done && b.opts.Policy == PolicyRetry {
		b.logger.Info("task not done", "file", name, "note", out.Note)
		return b.fail(name)
	}

	if err := b.opts.Store.MoveToDone(name); err != nil {
		b.logger.Error("move to done failed", "file", name, "error", err)
		return resultKept
	}
	b.forget(name)
	b.logger.Info("task done", "file", name)
	if b.opts.OnDone != nil {
		if out.Note != "" {
			trigger.Notes = append(trigger.Notes, out.Note)
		}
		if _, err := b.opts.OnDone.Handle(ctx, trigger); err != nil {
			b.logger.Warn("after-done handler failed", "file", name, "error", err)
		}
	}
	return resultDone
}

// fail counts an unsuccessful attempt and dead-letters the task once the
// attempt budget is spent.
func (b *Brain) fail(name string) result {
	if b.opts.MaxAttempts <= 0 {
		return resultKept
	}
	b.mu.Lock()
	b.attempts[name]++
	n := b.attempts[name]
	b.mu.Unlock()
	if n < b.opts.MaxAttempts {
		return resultKept
	}
	if err := b.opts.Store.MoveToFailed(name); err != nil {
		b.logger.Error("move to failed failed", "file", name, "error", err)
		return resultKept
	}
	b.forget(name)
	b.logger.Warn("task dead-lettered", "file", name, "attempts", n)
	return resultFailed
}

func (b *Brain) forget(name string) {
	b.mu.Lock()
	delete(b.attempts, name)
	b.mu.Unlock()
}
