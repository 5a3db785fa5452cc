package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/user/deskhand/internal/browser"
	"github.com/user/deskhand/internal/types"
)

// SendMessage delivers text to target, which is either a phone number or a
// contact/group name resolved through the channel's search.
func (d *Driver) SendMessage(ctx context.Context, target, text string) types.SendResult {
	target = strings.TrimSpace(target)
	if target == "" {
		return types.SendResult{Success: false, Error: "empty target"}
	}
	phone, isPhone := NormalizePhone(target)
	if isPhone && d.strategy.DirectURL == nil {
		return types.SendResult{Success: false, Error: d.strategy.Name + " does not support phone number targets"}
	}

	err := d.run(ctx, "send", d.opts.Headless, d.opts.LoginTimeout, func(ctx context.Context, s *session) error {
		if isPhone {
			if err := d.navigate(ctx, s, d.strategy.DirectURL(phone, text)); err != nil {
				return err
			}
			return d.deliver(ctx, s, text, true)
		}
		if err := d.openByName(ctx, s, target); err != nil {
			return err
		}
		return d.deliver(ctx, s, text, false)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTarget) {
			d.logger.Warn("send rejected", "target", target)
			return types.SendResult{Success: false, Error: d.strategy.InvalidTargetError}
		}
		d.logger.Error("send failed", "target", target, "error", err)
		return types.SendResult{Success: false, Error: err.Error()}
	}
	d.logger.Info("message sent", "target", target)
	return types.SendResult{Success: true, Status: "sent"}
}

// openByName types name into the search box and opens the first result
// that is not on the exclusion list.
func (d *Driver) openByName(ctx context.Context, s *session, name string) error {
	st := d.strategy
	_, box, err := browser.WaitFirst(ctx, s.page, d.opts.SendTimeout, d.opts.PollInterval, st.SearchBox)
	if err != nil {
		return fmt.Errorf("find search box: %w", err)
	}
	if err := box.Click(ctx); err != nil {
		return fmt.Errorf("focus search box: %w", err)
	}
	if err := box.Input(ctx, name); err != nil {
		return fmt.Errorf("type search: %w", err)
	}
	if err := sleep(ctx, d.opts.ViewDelay); err != nil {
		return err
	}
	if _, _, err := browser.WaitFirst(ctx, s.page, d.opts.SendTimeout, d.opts.PollInterval, st.SearchResults); err != nil {
		return fmt.Errorf("no search results for %q: %w", name, err)
	}
	results, err := st.SearchResults.All(ctx, s.page)
	if err != nil {
		return fmt.Errorf("read search results: %w", err)
	}

	for _, r := range results {
		text, _ := r.Text(ctx)
		if st.excluded(text) {
			s.logger.Debug("skipping excluded search result", "text", text)
			continue
		}
		if err := r.Click(ctx); err != nil {
			return fmt.Errorf("open chat: %w", err)
		}
		return nil
	}
	return fmt.Errorf("no contact matching %q", name)
}

// deliver races the invalid-target indicator against the message input.
// If both are visible in the same poll the target is treated as invalid.
func (d *Driver) deliver(ctx context.Context, s *session, text string, prefilled bool) error {
	st := d.strategy
	s.enter(StateSending)

	idx, input, err := browser.WaitFirst(ctx, s.page, d.opts.SendTimeout, d.opts.PollInterval, st.InvalidTarget, st.InputReady)
	if err != nil {
		return fmt.Errorf("wait for message input: %w", err)
	}
	if idx == 0 {
		return ErrInvalidTarget
	}

	if err := input.Click(ctx); err != nil {
		return fmt.Errorf("focus message input: %w", err)
	}
	if !prefilled {
		if err := input.Input(ctx, text); err != nil {
			return fmt.Errorf("type message: %w", err)
		}
	}
	if err := s.page.PressEnter(ctx); err != nil {
		return fmt.Errorf("press enter: %w", err)
	}
	return sleep(ctx, d.opts.SettleDelay)
}

// NormalizePhone reports whether s looks like a phone number and returns
// it reduced to digits with an optional leading '+'. Spaces, dashes, dots
// and parentheses are dropped; anything else means s is a name.
func NormalizePhone(s string) (string, bool) {
	var b strings.Builder
	digits := 0
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	if digits < 6 {
		return "", false
	}
	return b.String(), true
}
