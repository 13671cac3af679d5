package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old, unimportant memories",
		Long:  "Delete memories older than --older-than and below --below importance. Both conditions must hold.",
		Run:   runPurge,
	}

	cmd.Flags().Duration("older-than", 30*24*time.Hour, "Age cutoff, e.g. 720h")
	cmd.Flags().Float64("below", 0.3, "Importance threshold")

	RootCmd.AddCommand(cmd)
}

func runPurge(cmd *cobra.Command, args []string) {
	pair := requirePair()
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	below, _ := cmd.Flags().GetFloat64("below")

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	n, err := e.Purge(cmd.Context(), pair, store.PurgeParams{
		OlderThan:       time.Now().Add(-olderThan),
		BelowImportance: below,
	})
	if err != nil {
		exitErr("purge", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"purged":%d}`+"\n", n)
}
