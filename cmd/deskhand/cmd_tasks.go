package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/deskhand/internal/config"
	"github.com/user/deskhand/internal/state"
	"github.com/user/deskhand/internal/taskfile"
)

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksShowCmd, tasksRetryCmd)

	tasksListCmd.Flags().String("status", "pending", "pending, done or failed")
}

var statusDirs = map[string]string{
	"pending": state.DirPending,
	"done":    state.DirDone,
	"failed":  state.DirFailed,
}

func openVault(cfg *config.Config) (*state.Vault, error) {
	v := state.NewVault(cfg.VaultDir())
	if err := v.Init(); err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	return v, nil
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect the task vault",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List task files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		dir, ok := statusDirs[status]
		if !ok {
			return fmt.Errorf("unknown status %q (want pending, done or failed)", status)
		}

		v, err := openVault(loadConfig())
		if err != nil {
			return err
		}
		names, err := v.List(dir)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		if len(names) == 0 {
			fmt.Printf("No %s tasks.\n", status)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tTYPE\tSOURCE\tPRIORITY\tRECEIVED")
		for _, name := range names {
			data, err := v.ReadFrom(dir, name)
			if err != nil {
				fmt.Fprintf(w, "%s\t?\t?\t?\t%v\n", name, err)
				continue
			}
			task, err := taskfile.Parse(data)
			if err != nil {
				fmt.Fprintf(w, "%s\t%s\t?\t?\t(unreadable)\n", name, taskfile.SniffType(data))
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				name,
				task.Type,
				task.Source,
				task.Priority,
				task.Received.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print a task file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault(loadConfig())
		if err != nil {
			return err
		}
		dir, err := v.Find(args[0])
		if err != nil {
			return err
		}
		data, err := v.ReadFrom(dir, args[0])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var tasksRetryCmd = &cobra.Command{
	Use:   "retry <file>",
	Short: "Move a done or failed task back to Needs_Action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault(loadConfig())
		if err != nil {
			return err
		}
		if err := v.Requeue(args[0]); err != nil {
			return fmt.Errorf("requeue task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %q requeued.\n", args[0])
		return nil
	},
}
