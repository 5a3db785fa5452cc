package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/deskhand/internal/app"
	"github.com/user/deskhand/internal/messaging"
)

func init() {
	rootCmd.AddCommand(loginCmd, checkCmd, sendCmd)

	checkCmd.Flags().Bool("archived", false, "also read the archived chats")
	checkCmd.Flags().StringSlice("keyword", nil, "keyword to match (repeatable, defaults to the configured keywords)")
	checkCmd.Flags().Int("limit", 0, "maximum conversations to read")
}

// openApp builds the components for a one-shot command.
func openApp() (*app.App, error) {
	cfg := loadConfig()
	return app.New(cfg, setupLogging(cfg))
}

// channel returns the browser driver for name even when the channel is
// disabled, falling back to the gateway for channels without a driver.
func channel(a *app.App, name string) (messaging.Channel, error) {
	if d, ok := a.Drivers[name]; ok {
		return d, nil
	}
	if ch, ok := a.Gateway.Get(name); ok {
		return ch, nil
	}
	return nil, fmt.Errorf("unknown channel: %s", name)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}

var loginCmd = &cobra.Command{
	Use:   "login <channel>",
	Short: "Open the channel in a visible browser and wait for you to log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ch, err := channel(a, args[0])
		if err != nil {
			return err
		}
		l, ok := ch.(messaging.Loginer)
		if !ok {
			return fmt.Errorf("channel %s has no interactive login", args[0])
		}

		ctx, cancel := signalContext()
		defer cancel()

		fmt.Fprintf(os.Stdout, "Log in to %s in the browser window. The session is kept in %s.\n", args[0], a.Config.SessionsDir())
		if !l.Login(ctx) {
			return errors.New("login not confirmed")
		}
		fmt.Fprintln(os.Stdout, "Login confirmed.")
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <channel>",
	Short: "Check a channel once for keyword-matching conversations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archived, _ := cmd.Flags().GetBool("archived")
		keywords, _ := cmd.Flags().GetStringSlice("keyword")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ch, err := channel(a, args[0])
		if err != nil {
			return err
		}
		opts := a.CheckOptions(args[0])
		if cmd.Flags().Changed("archived") {
			opts.IncludeArchived = archived
		}
		if len(keywords) > 0 {
			opts.Keywords = keywords
		}
		if limit > 0 {
			opts.Limit = limit
		}

		ctx, cancel := signalContext()
		defer cancel()

		res := ch.CheckMessages(ctx, opts)
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("check %s: %s", args[0], res.Error)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <channel> <target> <text>",
	Short: "Send a message through a channel",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ch, err := channel(a, args[0])
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		res := ch.SendMessage(ctx, args[1], args[2])
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("send via %s: %s", args[0], res.Error)
		}
		return nil
	},
}
