package messaging

import (
	"context"
	"sync"

	"github.com/user/deskhand/internal/types"
)

// Gateway keeps channels in registration order and serializes operations
// per channel, because a channel owns a single browser profile.
type Gateway struct {
	mu       sync.RWMutex
	channels []Channel
	byName   map[string]Channel
	locks    map[string]*sync.Mutex
}

func NewGateway() *Gateway {
	return &Gateway{
		byName: make(map[string]Channel),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Register adds ch. Registering a name twice replaces the earlier channel
// in place.
func (g *Gateway) Register(ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := ch.Name()
	if _, ok := g.byName[name]; ok {
		for i, c := range g.channels {
			if c.Name() == name {
				g.channels[i] = ch
			}
		}
	} else {
		g.channels = append(g.channels, ch)
		g.locks[name] = &sync.Mutex{}
	}
	g.byName[name] = ch
}

// Get returns the channel registered under name.
func (g *Gateway) Get(name string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.byName[name]
	return ch, ok
}

// Channels returns all channels in registration order.
func (g *Gateway) Channels() []Channel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Channel(nil), g.channels...)
}

func (g *Gateway) lock(name string) *sync.Mutex {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.locks[name]
}

// Check runs CheckMessages on the named channel.
func (g *Gateway) Check(ctx context.Context, name string, opts types.CheckOptions) types.CheckResult {
	ch, ok := g.Get(name)
	if !ok {
		return types.CheckResult{Success: false, Error: "unknown channel: " + name}
	}
	l := g.lock(name)
	l.Lock()
	defer l.Unlock()
	return ch.CheckMessages(ctx, opts)
}

// Send runs SendMessage on the named channel.
func (g *Gateway) Send(ctx context.Context, name, target, text string) types.SendResult {
	ch, ok := g.Get(name)
	if !ok {
		return types.SendResult{Success: false, Error: "unknown channel: " + name}
	}
	l := g.lock(name)
	l.Lock()
	defer l.Unlock()
	return ch.SendMessage(ctx, target, text)
}

// Serialized wraps the named channel so that direct calls on it share the
// gateway's per-channel lock.
func (g *Gateway) Serialized(name string) Channel {
	return serialized{g: g, name: name}
}

type serialized struct {
	g    *Gateway
	name string
}

func (s serialized) Name() string { return s.name }

func (s serialized) CheckMessages(ctx context.Context, opts types.CheckOptions) types.CheckResult {
	return s.g.Check(ctx, s.name, opts)
}

func (s serialized) SendMessage(ctx context.Context, target, text string) types.SendResult {
	return s.g.Send(ctx, s.name, target, text)
}
