package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "interact <impact>",
		Short: "Record one interaction and advance the relationship",
		Long:  "Record one interaction with the given impact (positive builds trust, negative erodes it) and print the resulting relationship state.",
		Args:  cobra.ExactArgs(1),
		Run:   runInteract,
	}

	RootCmd.AddCommand(cmd)
}

func runInteract(cmd *cobra.Command, args []string) {
	pair := requirePair()
	impact, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		exitErr("interact", fmt.Errorf("impact %q is not a number", args[0]))
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	st, err := e.RecordInteraction(cmd.Context(), pair, impact)
	if err != nil {
		exitErr("interact", err)
	}

	printJSON(cmd.OutOrStdout(), st)
}
