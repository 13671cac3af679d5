package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	metaCmd := &cobra.Command{
		Use:   "meta",
		Short: "Per-pair metadata",
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read a metadata value",
		Args:  cobra.ExactArgs(1),
		Run:   runMetaGet,
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a metadata value",
		Args:  cobra.ExactArgs(2),
		Run:   runMetaSet,
	}

	metaCmd.AddCommand(getCmd, setCmd)
	RootCmd.AddCommand(metaCmd)
}

func runMetaGet(cmd *cobra.Command, args []string) {
	pair := requirePair()

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	v, ok, err := e.Metadata(cmd.Context(), pair, args[0])
	if err != nil {
		exitErr("meta get", err)
	}
	if !ok {
		exitErr("meta get", fmt.Errorf("key %q not set", args[0]))
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"key":%q,"value":%q}`+"\n", args[0], v)
}

func runMetaSet(cmd *cobra.Command, args []string) {
	pair := requirePair()

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	if err := e.SetMetadata(cmd.Context(), pair, args[0], args[1]); err != nil {
		exitErr("meta set", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"key":%q}`+"\n", args[0])
}
