// Package app assembles the daemon from the configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/user/deskhand/internal/brain"
	"github.com/user/deskhand/internal/browser"
	"github.com/user/deskhand/internal/config"
	ctxengine "github.com/user/deskhand/internal/context"
	"github.com/user/deskhand/internal/dedup"
	"github.com/user/deskhand/internal/delivery"
	"github.com/user/deskhand/internal/driver"
	"github.com/user/deskhand/internal/email"
	"github.com/user/deskhand/internal/messaging"
	"github.com/user/deskhand/internal/scheduler"
	"github.com/user/deskhand/internal/state"
	"github.com/user/deskhand/internal/telegram"
	"github.com/user/deskhand/internal/types"
	"github.com/user/deskhand/internal/watcher"
	"github.com/user/deskhand/internal/webhook"
	"github.com/user/deskhand/pkg/llm"
	"github.com/user/deskhand/pkg/llm/openai"
)

const (
	settleDelay = 3 * time.Second
	viewDelay   = 1 * time.Second
)

// App holds every long-lived component. Build it with New and release it
// with Close.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Vault   *state.Vault
	History *state.History
	Dedup   dedup.Set
	Inbox   *email.Inbox

	// Drivers holds the browser-backed channels whether or not they are
	// enabled, so an operator can log in before enabling one.
	Drivers  map[string]*driver.Driver
	Gateway  *messaging.Gateway
	Delivery *delivery.Registry
	Targets  []types.ForwardTarget
	Watcher  *watcher.Orchestrator
	Brain    *brain.Brain
}

// New builds the components described by cfg. Nothing is started and no
// browser is launched.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	policy, err := brain.ParsePolicy(cfg.Brain.Policy)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}

	a.Vault = state.NewVault(cfg.VaultDir())
	if err := a.Vault.Init(); err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	a.History = state.NewHistory(cfg.HistoryDir())

	if cfg.PersistDedupState {
		set, err := dedup.OpenSQLite(cfg.DedupPath())
		if err != nil {
			return nil, err
		}
		a.Dedup = set
	} else {
		a.Dedup = dedup.NewMemorySet()
	}

	a.Inbox = email.NewInbox(smtpSender(cfg))

	a.buildChannels()
	a.buildDelivery()
	a.Targets = ForwardTargets(cfg)

	a.Watcher = watcher.New(watcher.Options{
		Vault:            a.Vault,
		Dedup:            a.Dedup,
		Forwarder:        a.Delivery,
		ForwardTargets:   a.Targets,
		PriorityKeywords: cfg.PriorityKeywords,
		Parallel:         cfg.Watcher.Parallel,
		Logger:           logger,
	})
	a.addSources()

	handler, err := a.handlers()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Brain = brain.New(brain.Options{
		Store:       a.Vault,
		Handler:     handler,
		OnDone:      &brain.HistoryHandler{Log: a.History},
		Policy:      policy,
		MaxAttempts: cfg.Brain.MaxAttempts,
		MaxTokens:   cfg.Brain.TriggerMaxTokens,
		Logger:      logger,
	})
	return a, nil
}

// smtpSender returns nil when SMTP is not configured. The nil check keeps a
// typed nil pointer out of the Sender interface.
func smtpSender(cfg *config.Config) email.Sender {
	s := email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
	})
	if s == nil {
		return nil
	}
	return s
}

func (a *App) buildChannels() {
	cfg := a.Config
	profiles := browser.NewProfileStore(cfg.SessionsDir())
	profiles.Override("whatsapp", cfg.WhatsApp.SessionDir)
	profiles.Override("linkedin", cfg.LinkedIn.SessionDir)

	opts := driver.Options{
		Launcher:                &browser.RodLauncher{BinPath: cfg.Browser.BinPath},
		Profiles:                profiles,
		Headless:                cfg.Browser.Headless,
		UserAgent:               cfg.Browser.UserAgent,
		LoginTimeout:            seconds(cfg.Browser.LoginTimeoutSeconds),
		InteractiveLoginTimeout: seconds(cfg.Browser.InteractiveLoginTimeoutSeconds),
		SendTimeout:             seconds(cfg.Browser.SendTimeoutSeconds),
		SettleDelay:             settleDelay,
		ViewDelay:               viewDelay,
		ScreenshotDir:           cfg.ScreenshotDir(),
		Logger:                  a.Logger,
	}

	whatsapp := driver.New(driver.WhatsApp(), opts)

	liOpts := opts
	if cfg.LinkedIn.Email != "" && cfg.LinkedIn.Password != "" {
		liOpts.Credentials = &driver.Credentials{Username: cfg.LinkedIn.Email, Password: cfg.LinkedIn.Password}
	}
	linkedin := driver.New(driver.LinkedIn(), liOpts)

	a.Drivers = map[string]*driver.Driver{
		whatsapp.Name(): whatsapp,
		linkedin.Name(): linkedin,
	}

	a.Gateway = messaging.NewGateway()
	a.Gateway.Register(messaging.Gate(whatsapp.Name(), cfg.WhatsApp.Enabled, func() messaging.Channel { return whatsapp }))
	a.Gateway.Register(messaging.Gate(linkedin.Name(), cfg.LinkedIn.Enabled, func() messaging.Channel { return linkedin }))
	a.Gateway.Register(messaging.Gate("github", cfg.GitHub.Enabled, func() messaging.Channel {
		return messaging.Placeholder{ChannelName: "github"}
	}))
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// buildDelivery registers a handler per forward scheme. The telegram scheme
// is added by Run once the bot is connected.
func (a *App) buildDelivery() {
	a.Delivery = delivery.NewRegistry()
	for _, ch := range a.Gateway.Channels() {
		name := ch.Name()
		a.Delivery.Register(name, func(ctx context.Context, target types.ForwardTarget, message string) error {
			res := a.Gateway.Send(ctx, name, target.Address(), message)
			if !res.Success {
				return fmt.Errorf("send via %s: %s", name, res.Error)
			}
			return nil
		})
	}
	a.Delivery.Register("email", func(ctx context.Context, target types.ForwardTarget, message string) error {
		subject, _, _ := strings.Cut(message, "\n")
		return a.Inbox.Send(ctx, target.Address(), "[deskhand] "+subject, message)
	})
}

// ForwardTargets lists the admin addresses whose forward flag is set.
func ForwardTargets(cfg *config.Config) []types.ForwardTarget {
	var targets []types.ForwardTarget
	if cfg.Forward.ToWhatsApp && cfg.Admin.WhatsApp != "" {
		targets = append(targets, types.NewForwardTarget("whatsapp", cfg.Admin.WhatsApp))
	}
	if cfg.Forward.ToEmail && cfg.Admin.Email != "" {
		targets = append(targets, types.NewForwardTarget("email", cfg.Admin.Email))
	}
	if cfg.Forward.ToTelegram && cfg.Admin.TelegramChatID != "" {
		targets = append(targets, types.NewForwardTarget("telegram", cfg.Admin.TelegramChatID))
	}
	return targets
}

// channelConfig returns the watcher settings of a browser channel.
func (a *App) channelConfig(name string) (config.ChannelConfig, bool) {
	switch name {
	case "whatsapp":
		return a.Config.WhatsApp, true
	case "linkedin":
		return a.Config.LinkedIn.ChannelConfig, true
	}
	return config.ChannelConfig{}, false
}

// CheckOptions returns the configured check options for channel name.
func (a *App) CheckOptions(name string) types.CheckOptions {
	cc, _ := a.channelConfig(name)
	return types.CheckOptions{
		Keywords:        a.Config.Keywords,
		IncludeArchived: cc.IncludeArchived,
		Limit:           cc.Limit,
	}
}

func (a *App) addSources() {
	cfg := a.Config
	channels := []struct {
		name string
		typ  types.TaskType
	}{
		{"whatsapp", types.TaskWhatsApp},
		{"linkedin", types.TaskLinkedIn},
	}
	for _, c := range channels {
		cc, _ := a.channelConfig(c.name)
		if !cc.Enabled {
			continue
		}
		a.Watcher.Add(&watcher.ChannelSource{
			Channel:      a.Gateway.Serialized(c.name),
			Type:         c.typ,
			Options:      a.CheckOptions(c.name),
			PreviewChars: cfg.Dedup.PreviewChars,
		}, time.Duration(cc.IntervalMinutes)*time.Minute)
	}
	if cfg.Email.Enabled {
		a.Watcher.Add(&watcher.EmailSource{Client: a.Inbox}, time.Duration(cfg.Email.IntervalMinutes)*time.Minute)
	}
}

func (a *App) handlers() (brain.Handler, error) {
	cfg := a.Config
	var hs []brain.Handler
	if cfg.LLM.APIKey != "" {
		provider := openai.New(&llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		engine, err := ctxengine.New(provider, ctxengine.Options{
			Model:      cfg.LLM.Model,
			MaxTokens:  cfg.LLM.MaxContextTokens,
			Reserve:    cfg.LLM.MaxTokens,
			PromptPath: cfg.LLM.SystemPromptPath,
			Owner:      cfg.LLM.Owner,
			Logger:     a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create context engine: %w", err)
		}
		hs = append(hs, &brain.DraftHandler{Responder: engine, Log: a.History, Recent: a.History})
	}
	hs = append(hs, &brain.NotifyHandler{Delivery: a.Delivery, Targets: a.Targets})
	return brain.Chain(hs...), nil
}

// Run starts the scheduler, the HTTP server and the Telegram bot as
// configured, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	cfg := a.Config
	sched := scheduler.New(a.Logger)

	if cfg.Telegram.Token != "" {
		if err := a.startTelegram(ctx); err != nil {
			return err
		}
	} else {
		a.Logger.Warn("telegram adapter disabled (no token)")
	}

	a.Watcher.Schedule(sched, seconds(cfg.Watcher.TickSeconds))
	if cfg.Brain.Enabled {
		a.Brain.Schedule(sched, seconds(cfg.Brain.IntervalSeconds))
	}

	if cfg.HTTP.Enabled {
		srv := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           webhook.NewServer(a.Inbox, a.Vault, a.Gateway, a.Logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.Logger.Info("webhook server started", "listen", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("webhook server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	sched.Start(ctx)
	a.Logger.Info("deskhand started",
		"data_dir", cfg.DataDir,
		"sources", len(a.Watcher.Status()),
		"brain", cfg.Brain.Enabled,
		"policy", cfg.Brain.Policy,
		"forward_targets", len(a.Targets),
	)

	<-ctx.Done()
	a.Logger.Info("stopping scheduler")
	sched.Stop()
	return nil
}

func (a *App) startTelegram(ctx context.Context) error {
	var admin int64
	if id := a.Config.Admin.TelegramChatID; id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return fmt.Errorf("parse admin.telegram_chat_id: %w", err)
		}
		admin = n
	}
	adapter, err := telegram.New(a.Config.Telegram.Token, telegram.Options{
		AdminChatID: admin,
		Status:      a.StatusText,
		Pending:     a.Vault.ListPending,
		Logger:      a.Logger,
	})
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}
	a.Delivery.Register("telegram", adapter.Deliver)
	go adapter.Start(ctx)
	a.Logger.Info("telegram adapter started")
	return nil
}

// StatusText summarizes the watcher sources and the vault for operators.
func (a *App) StatusText(context.Context) string {
	var b strings.Builder
	for _, s := range a.Watcher.Status() {
		fmt.Fprintf(&b, "%s: every %s, %d polls", s.Name, s.Interval, s.Polls)
		if !s.LastCheckedAt.IsZero() {
			fmt.Fprintf(&b, ", last check %s", s.LastCheckedAt.Format("15:04:05"))
		}
		if s.LastError != "" {
			fmt.Fprintf(&b, ", last error: %s", s.LastError)
		}
		b.WriteString("\n")
	}
	pending, err := a.Vault.ListPending()
	if err != nil {
		fmt.Fprintf(&b, "pending: error: %v", err)
	} else {
		fmt.Fprintf(&b, "pending: %d", len(pending))
	}
	return b.String()
}

// Close releases the dedup store.
func (a *App) Close() error {
	if a.Dedup == nil {
		return nil
	}
	return a.Dedup.Close()
}
