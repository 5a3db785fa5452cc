// Package browser wraps a Chromium automation session behind small
// interfaces so channel drivers can be exercised without a real browser.
package browser

import (
	"context"
)

// Querier finds elements by CSS selector without waiting.
type Querier interface {
	Elements(ctx context.Context, selector string) ([]Element, error)
}

type Element interface {
	Querier
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Visible(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	Input(ctx context.Context, text string) error
}

// Page is a single tab of a launched browser. Closing the page shuts the
// whole browser down.
type Page interface {
	Querier
	Navigate(ctx context.Context, url string) error
	PressEnter(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

type LaunchOptions struct {
	// ProfileDir is the persistent user-data directory for the session.
	ProfileDir string
	Headless   bool
	UserAgent  string
}

// Launcher starts a browser with a persistent profile.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}
