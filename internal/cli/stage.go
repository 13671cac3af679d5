package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Show the relationship state",
		Run:   runStage,
	}

	cmd.Flags().IntP("history", "n", 0, "Also list the most recent interactions")

	RootCmd.AddCommand(cmd)
}

func runStage(cmd *cobra.Command, args []string) {
	pair := requirePair()
	history, _ := cmd.Flags().GetInt("history")

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	st := e.GetRelationshipStage(cmd.Context(), pair)
	if history <= 0 {
		printJSON(cmd.OutOrStdout(), st)
		return
	}
	printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"relationship": st,
		"interactions": e.Interactions(cmd.Context(), pair, history),
	})
}
