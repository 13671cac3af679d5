package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "pairs",
		Short: "List character/user pairs with stored memory",
		Run:   runPairs,
	}

	RootCmd.AddCommand(cmd)
}

func runPairs(cmd *cobra.Command, args []string) {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	pairs, err := e.ListPairs()
	if err != nil {
		exitErr("list pairs", err)
	}
	if pairs == nil {
		pairs = []model.Pair{}
	}

	printJSON(cmd.OutOrStdout(), pairs)
}
