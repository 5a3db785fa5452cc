// Package driver automates a web messaging surface through a persistent
// browser session. One Driver type serves every channel; a Strategy table
// carries the channel-specific URLs and selectors.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/user/deskhand/internal/browser"
)

var (
	// ErrLoginTimeout means no logged-in indicator appeared in time.
	ErrLoginTimeout = errors.New("login not detected")
	// ErrInvalidTarget means the channel rejected the send target.
	ErrInvalidTarget = errors.New("invalid target")
)

// State is the phase of a single driver operation.
type State int

const (
	StateInit State = iota
	StateAwaitLogin
	StateReady
	StateSending
	StateCleanup
	StateLoginFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitLogin:
		return "await_login"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateCleanup:
		return "cleanup"
	case StateLoginFailed:
		return "login_failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Credentials are used to fill a channel's login form, if it has one.
type Credentials struct {
	Username string
	Password string
}

type Options struct {
	Launcher  browser.Launcher
	Profiles  *browser.ProfileStore
	Headless  bool
	UserAgent string

	LoginTimeout            time.Duration
	InteractiveLoginTimeout time.Duration
	SendTimeout             time.Duration
	RowsTimeout             time.Duration
	PollInterval            time.Duration
	// SettleDelay is waited after pressing Enter so the message leaves the
	// outbox before the browser closes.
	SettleDelay time.Duration
	// ViewDelay is waited after switching views (archived, search).
	ViewDelay time.Duration

	ScreenshotDir string
	Credentials   *Credentials
	Retry         *browser.RetryPolicy
	Logger        *slog.Logger
}

// Driver owns the browser profile of one channel. Each operation launches
// the browser, waits for a logged-in page, does its work and closes the
// browser again on every exit path.
type Driver struct {
	strategy Strategy
	opts     Options
	logger   *slog.Logger
}

// New creates a Driver for strategy. Zero durations in opts get defaults.
func New(strategy Strategy, opts Options) *Driver {
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 60 * time.Second
	}
	if opts.InteractiveLoginTimeout <= 0 {
		opts.InteractiveLoginTimeout = 5 * time.Minute
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.RowsTimeout <= 0 {
		opts.RowsTimeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.Retry == nil {
		opts.Retry = browser.DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{
		strategy: strategy,
		opts:     opts,
		logger:   opts.Logger.With("component", "driver", "channel", strategy.Name),
	}
}

func (d *Driver) Name() string { return d.strategy.Name }

// session is the state of one operation call.
type session struct {
	page   browser.Page
	state  State
	logger *slog.Logger
}

func (s *session) enter(next State) {
	s.logger.Debug("driver state", "from", s.state.String(), "to", next.String())
	s.state = next
}

// run executes fn inside a fully managed browser session. The browser is
// closed whatever happens in fn, including panics.
func (d *Driver) run(ctx context.Context, op string, headless bool, loginTimeout time.Duration, fn func(ctx context.Context, s *session) error) (err error) {
	s := &session{state: StateInit, logger: d.logger.With("op", op)}

	dir, err := d.opts.Profiles.Dir(d.strategy.Name)
	if err != nil {
		return err
	}
	page, err := d.opts.Launcher.Launch(ctx, browser.LaunchOptions{
		ProfileDir: dir,
		Headless:   headless,
		UserAgent:  d.opts.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	s.page = page

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
		if err != nil {
			d.screenshot(page, op)
		}
		s.enter(StateCleanup)
		if cerr := page.Close(); cerr != nil {
			s.logger.Warn("close browser", "error", cerr)
		}
	}()

	s.enter(StateAwaitLogin)
	if err := d.awaitLogin(ctx, s, loginTimeout); err != nil {
		s.enter(StateLoginFailed)
		return err
	}
	s.enter(StateReady)
	return fn(ctx, s)
}

func (d *Driver) navigate(ctx context.Context, s *session, url string) error {
	err := d.opts.Retry.Execute(ctx, func(ctx context.Context) error {
		return s.page.Navigate(ctx, url)
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

// screenshot saves the current page for diagnosis. Failures are only logged.
func (d *Driver) screenshot(page browser.Page, op string) {
	if d.opts.ScreenshotDir == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("screenshot panicked", "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := page.Screenshot(ctx)
	if err != nil {
		d.logger.Debug("screenshot failed", "error", err)
		return
	}
	if err := os.MkdirAll(d.opts.ScreenshotDir, 0o755); err != nil {
		d.logger.Debug("screenshot dir", "error", err)
		return
	}
	path := filepath.Join(d.opts.ScreenshotDir, fmt.Sprintf("%s_%s_%d.png", d.strategy.Name, op, time.Now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		d.logger.Debug("write screenshot", "error", err)
		return
	}
	d.logger.Info("saved failure screenshot", "path", path)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
