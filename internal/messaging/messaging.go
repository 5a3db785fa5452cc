// Package messaging puts every messaging channel behind one interface so
// callers never need to know which surface they talk to.
package messaging

import (
	"context"

	"github.com/user/deskhand/internal/types"
)

const (
	ErrDisabled       = "disabled"
	ErrNotImplemented = "not implemented"
)

// Channel is the capability set every messaging surface offers.
type Channel interface {
	Name() string
	CheckMessages(ctx context.Context, opts types.CheckOptions) types.CheckResult
	SendMessage(ctx context.Context, target, text string) types.SendResult
}

// Loginer is implemented by channels that support an interactive login.
type Loginer interface {
	Login(ctx context.Context) bool
}

// Gate returns the channel built by build when enabled. A disabled channel
// answers every call with ErrDisabled and build is never called, so no
// browser or network resource is touched.
func Gate(name string, enabled bool, build func() Channel) Channel {
	if !enabled {
		return disabled{name: name}
	}
	return build()
}

type disabled struct {
	name string
}

func (d disabled) Name() string { return d.name }

func (d disabled) CheckMessages(context.Context, types.CheckOptions) types.CheckResult {
	return types.CheckResult{Success: false, Error: ErrDisabled}
}

func (d disabled) SendMessage(context.Context, string, string) types.SendResult {
	return types.SendResult{Success: false, Error: ErrDisabled}
}

// Enabled reports whether ch is a live channel rather than a disabled stub.
func Enabled(ch Channel) bool {
	_, off := ch.(disabled)
	return !off
}

// Placeholder is a channel that is recognised but not built yet.
type Placeholder struct {
	ChannelName string
}

func (p Placeholder) Name() string { return p.ChannelName }

func (p Placeholder) CheckMessages(context.Context, types.CheckOptions) types.CheckResult {
	return types.CheckResult{Success: false, Error: ErrNotImplemented}
}

func (p Placeholder) SendMessage(context.Context, string, string) types.SendResult {
	return types.SendResult{Success: false, Error: ErrNotImplemented}
}
