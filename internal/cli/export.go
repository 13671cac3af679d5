package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a pair's memories and details as JSON",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	pair := requirePair()

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	dump, err := e.Export(cmd.Context(), pair)
	if err != nil {
		exitErr("export", err)
	}

	printJSON(cmd.OutOrStdout(), dump)
}
