// internal/delivery/registry_test.go
package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/user/deskhand/internal/types"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var gotTarget types.ForwardTarget
	var gotMsg string
	reg.Register("whatsapp", func(_ context.Context, target types.ForwardTarget, message string) error {
		gotTarget = target
		gotMsg = message
		return nil
	})

	err := reg.Deliver(context.Background(), "whatsapp:+15550001111", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTarget.Address() != "+15550001111" {
		t.Errorf("expected address %q, got %q", "+15550001111", gotTarget.Address())
	}
	if gotMsg != "hello" {
		t.Errorf("expected message %q, got %q", "hello", gotMsg)
	}
}

func TestRegistryNoHandler(t *testing.T) {
	reg := NewRegistry()

	err := reg.Deliver(context.Background(), "pager:123", "hello")
	if err == nil {
		t.Fatal("expected error for unregistered scheme, got nil")
	}
}

func TestRegistryEmptyAddress(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register("email", func(context.Context, types.ForwardTarget, string) error {
		called = true
		return nil
	})
	if err := reg.Deliver(context.Background(), "email:", "x"); err == nil {
		t.Fatal("expected error for empty address")
	}
	if called {
		t.Error("handler must not be called without an address")
	}
}

func TestRegistryBroadcastContinuesAfterFailure(t *testing.T) {
	reg := NewRegistry()

	var telegramCalls, emailCalls int
	reg.Register("telegram", func(context.Context, types.ForwardTarget, string) error {
		telegramCalls++
		return errors.New("bot offline")
	})
	reg.Register("email", func(context.Context, types.ForwardTarget, string) error {
		emailCalls++
		return nil
	})

	err := reg.Broadcast(context.Background(), []types.ForwardTarget{
		"telegram:42",
		"email:me@example.com",
	}, "msg")
	if err == nil || !strings.Contains(err.Error(), "bot offline") {
		t.Fatalf("expected joined telegram error, got %v", err)
	}
	if telegramCalls != 1 || emailCalls != 1 {
		t.Errorf("expected both handlers called, got telegram=%d email=%d", telegramCalls, emailCalls)
	}

	if got := reg.Schemes(); len(got) != 2 || got[0] != "email" {
		t.Errorf("unexpected schemes %v", got)
	}
}
