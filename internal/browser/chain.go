package browser

import (
	"context"
	"time"
)

// Chain is an ordered list of CSS selectors for one logical element. The
// first selector that matches wins.
type Chain []string

// All returns every element matched by the first selector that matches
// anything.
func (c Chain) All(ctx context.Context, q Querier) ([]Element, error) {
	var lastErr error
	for _, sel := range c {
		els, err := q.Elements(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if len(els) > 0 {
			return els, nil
		}
	}
	if lastErr != nil {
		return nil, &Error{Op: "query", Chain: c, Err: lastErr}
	}
	return nil, &Error{Op: "query", Chain: c, Err: ErrNotFound}
}

// First returns the first element of the first matching selector.
func (c Chain) First(ctx context.Context, q Querier) (Element, error) {
	els, err := c.All(ctx, q)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

// Last returns the last element of the first matching selector.
func (c Chain) Last(ctx context.Context, q Querier) (Element, error) {
	els, err := c.All(ctx, q)
	if err != nil {
		return nil, err
	}
	return els[len(els)-1], nil
}

// FirstVisible returns the first visible element across all selectors.
func (c Chain) FirstVisible(ctx context.Context, q Querier) (Element, bool) {
	for _, sel := range c {
		els, err := q.Elements(ctx, sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if ok, err := el.Visible(ctx); err == nil && ok {
				return el, true
			}
		}
	}
	return nil, false
}

// WaitFirst polls q until one of chains has a visible element and returns
// the index of that chain. Chains are checked in argument order on every
// poll, so when several are visible at once the earliest chain wins.
func WaitFirst(ctx context.Context, q Querier, timeout, interval time.Duration, chains ...Chain) (int, Element, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for i, c := range chains {
			if el, ok := c.FirstVisible(ctx, q); ok {
				return i, el, nil
			}
		}
		select {
		case <-ctx.Done():
			return -1, nil, ctx.Err()
		case <-deadline.C:
			return -1, nil, &Error{Op: "wait", Chain: joinChains(chains), Err: ErrTimeout}
		case <-ticker.C:
		}
	}
}

func joinChains(chains []Chain) Chain {
	var all Chain
	for _, c := range chains {
		all = append(all, c...)
	}
	return all
}
