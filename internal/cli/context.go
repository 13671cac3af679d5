package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Retrieve and assemble memory context for a reply",
		Long:  "Rank memories by keyword relevance to the query, partition them and render the context summary. With -f text only the summary is printed.",
		Run:   runContext,
	}

	cmd.Flags().IntP("max", "m", 0, "Max memories (default from config)")
	cmd.Flags().Float64("min-importance", 0, "Minimum importance (default from config)")
	cmd.Flags().Bool("no-emotional", false, "Skip the emotional summary")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	pair := requirePair()

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	params := e.ContextDefaults()
	params.Query = strings.Join(args, " ")
	if cmd.Flags().Changed("max") {
		params.MaxMemories, _ = cmd.Flags().GetInt("max")
	}
	if cmd.Flags().Changed("min-importance") {
		params.MinImportance, _ = cmd.Flags().GetFloat64("min-importance")
	}
	if noEmotional, _ := cmd.Flags().GetBool("no-emotional"); noEmotional {
		params.IncludeEmotional = false
	}

	mc := e.GetMemoryContext(cmd.Context(), pair, params)
	if formatFlag == "text" {
		fmt.Fprintln(cmd.OutOrStdout(), mc.Summary)
		return
	}
	printJSON(cmd.OutOrStdout(), mc)
}
