package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/deskhand/internal/config"
	"github.com/user/deskhand/internal/dedup"
)

func init() {
	rootCmd.AddCommand(dedupCmd)
	dedupCmd.AddCommand(dedupPruneCmd)

	dedupPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "remove keys claimed before this age")
}

func openDedup(cfg *config.Config) (*dedup.SQLiteSet, error) {
	if !cfg.PersistDedupState {
		return nil, errors.New("dedup state is kept in memory (persist_dedup_state is false)")
	}
	return dedup.OpenSQLite(cfg.DedupPath())
}

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Manage the persisted dedup keys",
}

var dedupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Forget old dedup keys so matching messages can become tasks again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")

		set, err := openDedup(loadConfig())
		if err != nil {
			return err
		}
		defer set.Close()

		n, err := set.Prune(context.Background(), time.Now().Add(-age))
		if err != nil {
			return fmt.Errorf("prune dedup keys: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Removed %d keys.\n", n)
		return nil
	},
}
