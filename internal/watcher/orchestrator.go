// Package watcher polls the configured sources on independent intervals and
// turns every newly observed item into a task file.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/user/deskhand/internal/dedup"
	"github.com/user/deskhand/internal/scheduler"
	"github.com/user/deskhand/internal/types"
)

// TaskWriter persists a task and returns its file name.
type TaskWriter interface {
	Write(task *types.TaskFile) (string, error)
}

// Forwarder delivers a notification to a forward target.
type Forwarder interface {
	Deliver(ctx context.Context, target types.ForwardTarget, message string) error
}

// Options configures an Orchestrator.
type Options struct {
	Vault            TaskWriter
	Dedup            dedup.Set
	Forwarder        Forwarder
	ForwardTargets   []types.ForwardTarget
	PriorityKeywords []string
	// Parallel > 1 polls due sources concurrently.
	Parallel int
	Logger   *slog.Logger
	Now      func() time.Time
}

type entry struct {
	src         Source
	interval    time.Duration
	lastChecked time.Time
	polls       int
	lastErr     string
}

// Orchestrator owns the per-source poll state.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	entries []*entry
	// slack lets a source become due up to half a tick early, so scheduler
	// jitter never pushes a poll to the following tick.
	slack time.Duration
}

// Report summarizes one tick.
type Report struct {
	Polled     []string
	Created    []string
	Duplicates int
	Errors     []error
}

// SourceStatus is a snapshot of one source's poll state.
type SourceStatus struct {
	Name          string
	Interval      time.Duration
	LastCheckedAt time.Time
	Polls         int
	LastError     string
}

func New(opts Options) *Orchestrator {
	if opts.Dedup == nil {
		opts.Dedup = dedup.NewMemorySet()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if len(opts.PriorityKeywords) == 0 {
		opts.PriorityKeywords = []string{"urgent"}
	}
	return &Orchestrator{
		opts:   opts,
		logger: opts.Logger.With("component", "watcher"),
	}
}

// Add registers src. Sources are polled in the order they were added.
func (o *Orchestrator) Add(src Source, interval time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, &entry{src: src, interval: interval})
}

// Start resets every source's last check to now, so the first poll of a
// source happens one interval later.
func (o *Orchestrator) Start(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.entries {
		e.lastChecked = now
	}
}

// Schedule starts the orchestrator and registers its tick on s.
func (o *Orchestrator) Schedule(s *scheduler.Scheduler, every time.Duration) {
	o.mu.Lock()
	o.slack = every / 2
	o.mu.Unlock()
	o.Start(o.opts.Now())
	s.Every("watcher", every, func(ctx context.Context) {
		r := o.Tick(ctx, o.opts.Now())
		if len(r.Polled) > 0 {
			o.logger.Debug("tick complete", "polled", r.Polled, "created", len(r.Created), "duplicates", r.Duplicates, "errors", len(r.Errors))
		}
	})
}

// Tick polls every source whose interval has elapsed at now. A polled
// source's last check is set to now whatever the outcome. When scheduled,
// a source is due within half a tick of its interval.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) Report {
	o.mu.Lock()
	var due []*entry
	for _, e := range o.entries {
		if now.Sub(e.lastChecked)+o.slack >= e.interval {
			due = append(due, e)
		}
	}
	o.mu.Unlock()

	var rep Report
	var repMu sync.Mutex
	record := func(e *entry, created []string, dups int, err error) {
		repMu.Lock()
		defer repMu.Unlock()
		rep.Polled = append(rep.Polled, e.src.Name())
		rep.Created = append(rep.Created, created...)
		rep.Duplicates += dups
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", e.src.Name(), err))
		}
	}

	if o.opts.Parallel == 1 || len(due) < 2 {
		for _, e := range due {
			if ctx.Err() != nil {
				break
			}
			created, dups, err := o.poll(ctx, e, now)
			record(e, created, dups, err)
		}
		return rep
	}

	sem := semaphore.NewWeighted(int64(o.opts.Parallel))
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range due {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			created, dups, err := o.poll(gctx, e, now)
			record(e, created, dups, err)
			return nil
		})
	}
	g.Wait()
	return rep
}

func (o *Orchestrator) poll(ctx context.Context, e *entry, now time.Time) (created []string, dups int, err error) {
	name := e.src.Name()
	defer func() {
		o.mu.Lock()
		e.lastChecked = now
		e.polls++
		e.lastErr = ""
		if err != nil {
			e.lastErr = err.Error()
		}
		o.mu.Unlock()
	}()

	o.logger.Info("scanning source", "source", name)
	items, err := e.src.Fetch(ctx)
	if err != nil {
		o.logger.Warn("poll failed", "source", name, "error", err)
		return nil, 0, err
	}

	acker, _ := e.src.(Acker)
	for _, it := range items {
		file, fresh, ierr := o.ingest(ctx, it)
		if ierr != nil {
			o.logger.Error("ingest failed", "source", name, "key", it.Key, "error", ierr)
			err = ierr
			continue
		}
		if acker != nil {
			if aerr := acker.Ack(ctx, it); aerr != nil {
				o.logger.Warn("ack failed", "source", name, "key", it.Key, "error", aerr)
			}
		}
		if !fresh {
			dups++
			continue
		}
		created = append(created, file)
	}
	return created, dups, err
}

// ingest claims the item's key and writes its task. The claim is released
// when the write fails so a later poll retries.
func (o *Orchestrator) ingest(ctx context.Context, it Item) (string, bool, error) {
	fresh, err := o.opts.Dedup.Claim(ctx, it.Key)
	if err != nil {
		return "", false, fmt.Errorf("claim key: %w", err)
	}
	if !fresh {
		return "", false, nil
	}

	payload, err := json.Marshal(it.Payload)
	if err != nil {
		o.opts.Dedup.Release(ctx, it.Key)
		return "", false, fmt.Errorf("marshal payload: %w", err)
	}
	task := &types.TaskFile{
		ID:       types.NewTaskID(),
		Type:     it.Type,
		Source:   it.Source,
		Received: o.opts.Now().UTC(),
		Status:   types.TaskPending,
		Priority: PriorityOf(payload, o.opts.PriorityKeywords),
		DedupKey: it.Key,
		Body:     it.Body,
		Payload:  payload,
	}
	name, err := o.opts.Vault.Write(task)
	if err != nil {
		if rerr := o.opts.Dedup.Release(ctx, it.Key); rerr != nil {
			o.logger.Error("release key failed", "key", it.Key, "error", rerr)
		}
		return "", false, fmt.Errorf("write task: %w", err)
	}
	o.logger.Info("created task", "file", name, "priority", task.Priority)

	o.forward(ctx, task)
	return name, true, nil
}

func (o *Orchestrator) forward(ctx context.Context, task *types.TaskFile) {
	if o.opts.Forwarder == nil || len(o.opts.ForwardTargets) == 0 {
		return
	}
	msg := ForwardMessage(task)
	for _, target := range o.opts.ForwardTargets {
		if err := o.opts.Forwarder.Deliver(ctx, target, msg); err != nil {
			o.logger.Warn("forward failed", "target", target, "error", err)
		}
	}
}

// ForwardMessage is the notification text sent for a new task.
func ForwardMessage(task *types.TaskFile) string {
	body := []rune(strings.TrimSpace(task.Body))
	if len(body) > 500 {
		body = append(body[:500], '…')
	}
	prefix := ""
	if task.Priority == types.PriorityHigh {
		prefix = "[URGENT] "
	}
	return fmt.Sprintf("%sNew %s from %s:\n%s", prefix, task.Type, task.Source, string(body))
}

// PriorityOf is high when any keyword occurs in payload, case-insensitively.
func PriorityOf(payload []byte, keywords []string) types.Priority {
	hay := strings.ToLower(string(payload))
	for _, kw := range keywords {
		if kw != "" && strings.Contains(hay, strings.ToLower(kw)) {
			return types.PriorityHigh
		}
	}
	return types.PriorityNormal
}

// Status returns the poll state of every source in registration order.
func (o *Orchestrator) Status() []SourceStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SourceStatus, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, SourceStatus{
			Name:          e.src.Name(),
			Interval:      e.interval,
			LastCheckedAt: e.lastChecked,
			Polls:         e.polls,
			LastError:     e.lastErr,
		})
	}
	return out
}
