package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a stored memory",
		Long:  "Change the content, type or importance of a memory. Changing only the importance keeps the other scores as stored.",
		Args:  cobra.ExactArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().String("content", "", "New content")
	cmd.Flags().String("type", "", "New memory type")
	cmd.Flags().Float64("importance", 0, "New importance in [0.1, 1.0]")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	pair := requirePair()
	id := args[0]
	content, _ := cmd.Flags().GetString("content")

	params := store.UpdateParams{ID: id, Content: content}
	if cmd.Flags().Changed("type") {
		t, _ := cmd.Flags().GetString("type")
		params.MemoryType = &t
	}
	if cmd.Flags().Changed("importance") {
		v, _ := cmd.Flags().GetFloat64("importance")
		params.Importance = &v
	}
	if params.Content == "" && params.MemoryType == nil && params.Importance == nil {
		exitErr("update", fmt.Errorf("nothing to update: pass --content, --type or --importance"))
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	if params.Content == "" && params.MemoryType == nil {
		err = e.UpdateImportance(cmd.Context(), pair, id, *params.Importance)
	} else {
		err = e.UpdateMemory(cmd.Context(), pair, params)
	}
	if err != nil {
		exitErr("update", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", id)
}
