package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/deskhand/internal/browser"
)

// Login opens the channel headed and waits for the user to finish logging
// in. It reports whether a logged-in page was seen; it never fails the
// caller.
func (d *Driver) Login(ctx context.Context) bool {
	err := d.run(ctx, "login", false, d.opts.InteractiveLoginTimeout, func(context.Context, *session) error {
		return nil
	})
	if err != nil {
		d.logger.Warn("login incomplete", "error", err)
		return false
	}
	d.logger.Info("login confirmed")
	return true
}

// awaitLogin opens the home page and polls for any logged-in indicator.
// When the strategy has a login form and credentials are set, the form is
// submitted once if it shows up first.
func (d *Driver) awaitLogin(ctx context.Context, s *session, timeout time.Duration) error {
	if err := d.navigate(ctx, s, d.strategy.HomeURL); err != nil {
		return err
	}

	chains := []browser.Chain{d.strategy.LoggedIn}
	form := d.strategy.LoginForm
	if form != nil && d.opts.Credentials != nil && d.opts.Credentials.Username != "" {
		chains = append(chains, form.Username)
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w within %s", ErrLoginTimeout, timeout)
		}
		idx, el, err := browser.WaitFirst(ctx, s.page, remaining, d.opts.PollInterval, chains...)
		if err != nil {
			if errors.Is(err, browser.ErrTimeout) {
				return fmt.Errorf("%w within %s", ErrLoginTimeout, timeout)
			}
			return err
		}
		if idx == 0 {
			return nil
		}

		s.logger.Info("login form found, submitting credentials")
		if err := d.submitCredentials(ctx, s, el); err != nil {
			return err
		}
		chains = chains[:1]
	}
}

func (d *Driver) submitCredentials(ctx context.Context, s *session, username browser.Element) error {
	form := d.strategy.LoginForm
	if err := username.Input(ctx, d.opts.Credentials.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	password, err := form.Password.First(ctx, s.page)
	if err != nil {
		return fmt.Errorf("find password field: %w", err)
	}
	if err := password.Input(ctx, d.opts.Credentials.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	submit, err := form.Submit.First(ctx, s.page)
	if err != nil {
		return fmt.Errorf("find submit button: %w", err)
	}
	if err := submit.Click(ctx); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	return nil
}
