package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/deskhand/internal/browser"
	"github.com/user/deskhand/internal/config"
	"github.com/user/deskhand/internal/dedup"
	"github.com/user/deskhand/internal/state"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Width(18)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	offStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func onOff(on bool, yes, no string) string {
	if on {
		return okStyle.Render(yes)
	}
	return offStyle.Render(no)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, channel and vault status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		fmt.Fprintln(os.Stdout, renderStatus(cfg))
		return nil
	},
}

func renderStatus(cfg *config.Config) string {
	var lines []string

	lines = append(lines, headerStyle.Render("Daemon"))
	if pid, err := readPID(cfg); err == nil {
		lines = append(lines, row("running", okStyle.Render("pid "+strconv.Itoa(pid))))
	} else {
		lines = append(lines, row("running", offStyle.Render("no")))
	}
	lines = append(lines, row("data dir", cfg.DataDir))

	lines = append(lines, headerStyle.Render("Channels"))
	profiles := browser.NewProfileStore(cfg.SessionsDir())
	profiles.Override("whatsapp", cfg.WhatsApp.SessionDir)
	profiles.Override("linkedin", cfg.LinkedIn.SessionDir)
	for _, ch := range []struct {
		name string
		cc   config.ChannelConfig
	}{
		{"whatsapp", cfg.WhatsApp},
		{"linkedin", cfg.LinkedIn.ChannelConfig},
	} {
		value := onOff(ch.cc.Enabled, fmt.Sprintf("every %dm", ch.cc.IntervalMinutes), "disabled")
		if !profiles.Exists(ch.name) {
			value += "  " + warnStyle.Render("no session, run deskhand login "+ch.name)
		}
		lines = append(lines, row(ch.name, value))
	}
	lines = append(lines, row("email", onOff(cfg.Email.Enabled, fmt.Sprintf("every %dm", cfg.Email.IntervalMinutes), "disabled")))
	lines = append(lines, row("github", onOff(cfg.GitHub.Enabled, "placeholder", "disabled")))

	lines = append(lines, headerStyle.Render("Vault"))
	v := state.NewVault(cfg.VaultDir())
	for _, s := range []string{"pending", "done", "failed"} {
		names, err := v.List(statusDirs[s])
		if err != nil {
			lines = append(lines, row(s, warnStyle.Render(err.Error())))
			continue
		}
		value := strconv.Itoa(len(names))
		if s == "failed" && len(names) > 0 {
			value = warnStyle.Render(value)
		}
		lines = append(lines, row(s, value))
	}

	lines = append(lines, headerStyle.Render("Dedup"))
	if cfg.PersistDedupState {
		lines = append(lines, row("persisted keys", dedupCount(cfg)))
	} else {
		lines = append(lines, row("persisted keys", offStyle.Render("in memory only")))
	}

	lines = append(lines, headerStyle.Render("Brain"))
	lines = append(lines, row("policy", cfg.Brain.Policy))
	lines = append(lines, row("reply drafts", onOff(cfg.LLM.APIKey != "", cfg.LLM.Model, "off (no llm.api_key)")))
	lines = append(lines, row("telegram", onOff(cfg.Telegram.Token != "", "on", "off")))

	return strings.Join(lines, "\n")
}

func dedupCount(cfg *config.Config) string {
	set, err := dedup.OpenSQLite(cfg.DedupPath())
	if err != nil {
		return warnStyle.Render(err.Error())
	}
	defer set.Close()
	n, err := set.Len(context.Background())
	if err != nil {
		return warnStyle.Render(err.Error())
	}
	return strconv.Itoa(n)
}
