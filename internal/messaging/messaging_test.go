package messaging

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/user/deskhand/internal/browser"
	"github.com/user/deskhand/internal/browser/browsertest"
	"github.com/user/deskhand/internal/driver"
	"github.com/user/deskhand/internal/types"
)

func TestGate_DisabledNeverLaunches(t *testing.T) {
	spy := &browsertest.Launcher{Page: browsertest.NewPage()}
	built := 0
	build := func() Channel {
		built++
		return driver.New(driver.WhatsApp(), driver.Options{
			Launcher: spy,
			Profiles: browser.NewProfileStore(t.TempDir()),
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
	}

	for _, name := range []string{"whatsapp", "linkedin"} {
		ch := Gate(name, false, build)
		if ch.Name() != name {
			t.Errorf("expected name %s, got %s", name, ch.Name())
		}
		if Enabled(ch) {
			t.Errorf("%s: expected disabled channel", name)
		}

		check := ch.CheckMessages(context.Background(), types.CheckOptions{Keywords: []string{"urgent"}, IncludeArchived: true})
		if check.Success || check.Error != ErrDisabled {
			t.Errorf("%s: unexpected check result %+v", name, check)
		}
		send := ch.SendMessage(context.Background(), "+15550001111", "hi")
		if send.Success || send.Error != ErrDisabled {
			t.Errorf("%s: unexpected send result %+v", name, send)
		}
	}

	if built != 0 {
		t.Errorf("disabled channels must not be built, built %d", built)
	}
	if spy.Launches() != 0 {
		t.Errorf("disabled channels must not launch a browser, got %d launches", spy.Launches())
	}
}

func TestGate_EnabledBuilds(t *testing.T) {
	ch := Gate("github", true, func() Channel { return Placeholder{ChannelName: "github"} })
	if !Enabled(ch) {
		t.Fatal("expected enabled channel")
	}
	res := ch.CheckMessages(context.Background(), types.CheckOptions{})
	if res.Success || res.Error != ErrNotImplemented {
		t.Errorf("unexpected placeholder result %+v", res)
	}
	if r := ch.SendMessage(context.Background(), "octocat", "hi"); r.Error != ErrNotImplemented {
		t.Errorf("unexpected placeholder send %+v", r)
	}
}

// countingChannel records calls and how many run at once.
type countingChannel struct {
	name    string
	mu      sync.Mutex
	active  int
	maxSeen int
	sends   []string
}

func (c *countingChannel) Name() string { return c.name }

func (c *countingChannel) enter() {
	c.mu.Lock()
	c.active++
	if c.active > c.maxSeen {
		c.maxSeen = c.active
	}
	c.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
}

func (c *countingChannel) CheckMessages(context.Context, types.CheckOptions) types.CheckResult {
	c.enter()
	return types.CheckResult{Success: true}
}

func (c *countingChannel) SendMessage(_ context.Context, target, _ string) types.SendResult {
	c.enter()
	c.mu.Lock()
	c.sends = append(c.sends, target)
	c.mu.Unlock()
	return types.SendResult{Success: true, Status: "sent"}
}

func TestGateway_OrderAndLookup(t *testing.T) {
	gw := NewGateway()
	gw.Register(&countingChannel{name: "whatsapp"})
	gw.Register(&countingChannel{name: "linkedin"})
	gw.Register(Placeholder{ChannelName: "github"})
	replacement := &countingChannel{name: "whatsapp"}
	gw.Register(replacement)

	names := []string{}
	for _, ch := range gw.Channels() {
		names = append(names, ch.Name())
	}
	if len(names) != 3 || names[0] != "whatsapp" || names[1] != "linkedin" || names[2] != "github" {
		t.Errorf("unexpected order %v", names)
	}
	if ch, _ := gw.Get("whatsapp"); ch != Channel(replacement) {
		t.Error("expected re-registration to replace the channel")
	}

	res := gw.Send(context.Background(), "sms", "x", "y")
	if res.Success || res.Error != "unknown channel: sms" {
		t.Errorf("unexpected result %+v", res)
	}
	if c := gw.Check(context.Background(), "sms", types.CheckOptions{}); c.Error != "unknown channel: sms" {
		t.Errorf("unexpected result %+v", c)
	}
}

func TestGateway_SerializesPerChannel(t *testing.T) {
	ch := &countingChannel{name: "whatsapp"}
	gw := NewGateway()
	gw.Register(ch)
	wrapped := gw.Serialized("whatsapp")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			gw.Send(context.Background(), "whatsapp", "+1555000", "hi")
		}()
		go func() {
			defer wg.Done()
			wrapped.CheckMessages(context.Background(), types.CheckOptions{})
		}()
	}
	wg.Wait()

	if ch.maxSeen != 1 {
		t.Errorf("expected one operation at a time, saw %d", ch.maxSeen)
	}
	if len(ch.sends) != 4 {
		t.Errorf("expected 4 sends, got %d", len(ch.sends))
	}
}
