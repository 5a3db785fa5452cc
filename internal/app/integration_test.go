//go:build integration

package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestDaemonEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.WhatsApp.Enabled = false
	cfg.Email.Enabled = true
	cfg.Email.IntervalMinutes = 0
	cfg.Watcher.TickSeconds = 1
	cfg.Brain.IntervalSeconds = 1
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = freeAddr(t)
	cfg.PersistDedupState = true

	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	base := "http://" + cfg.HTTP.Listen
	waitFor(t, 5*time.Second, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	body := `{"id":"m-42","sender":"bob@example.com","subject":"URGENT invoice","html":"<p>Please <b>pay</b> today</p>"}`
	resp, err := http.Post(base+"/ingest/email", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	waitFor(t, 15*time.Second, func() bool {
		names, err := a.Vault.ListDone()
		return err == nil && len(names) == 1
	})

	resp, err = http.Get(base + "/api/tasks?status=done")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var tasks []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0]["type"] != "email" || tasks[0]["priority"] != "high" {
		t.Errorf("unexpected task list %+v", tasks)
	}

	n, err := a.Dedup.Len(context.Background())
	if err != nil || n != 1 {
		t.Errorf("expected one persisted dedup key, got %d (%v)", n, err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
