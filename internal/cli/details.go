package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/model"
)

func init() {
	detailsCmd := &cobra.Command{
		Use:   "details",
		Short: "List personal details known about the user",
		Run:   runDetails,
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Record a personal detail manually",
		Run:   runDetailsAdd,
	}
	addCmd.Flags().String("type", "", "Detail type: name, age, location, occupation, family, pet, preference (required)")
	addCmd.Flags().String("content", "", "Detail content (required)")
	addCmd.Flags().Float64("confidence", 1.0, "Confidence in [0, 1]")
	addCmd.MarkFlagRequired("type")
	addCmd.MarkFlagRequired("content")

	detailsCmd.AddCommand(addCmd)
	RootCmd.AddCommand(detailsCmd)
}

func runDetails(cmd *cobra.Command, args []string) {
	pair := requirePair()

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	printJSON(cmd.OutOrStdout(), e.GetPersonalDetails(cmd.Context(), pair))
}

func runDetailsAdd(cmd *cobra.Command, args []string) {
	pair := requirePair()
	detailType, _ := cmd.Flags().GetString("type")
	content, _ := cmd.Flags().GetString("content")
	confidence, _ := cmd.Flags().GetFloat64("confidence")

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	err = e.AddPersonalDetail(cmd.Context(), pair, model.PersonalDetail{
		DetailType: detailType,
		Content:    content,
		Confidence: confidence,
		Source:     model.SourceManual,
	})
	if err != nil {
		exitErr("add detail", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"detail_type":%q}`+"\n", detailType)
}
