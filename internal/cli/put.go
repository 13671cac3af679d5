package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/model"
	"github.com/rcliao/persona-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store an utterance as a memory",
		Long:  "Analyze and store one utterance. Content can be a positional arg or piped via stdin. Scores left unset are computed from the content.",
		Run:   runPut,
	}

	cmd.Flags().String("type", "", "Memory type: "+strings.Join(model.MemoryTypes, ", "))
	cmd.Flags().Float64("importance", store.UnsetImportance, "Importance in [0.1, 1.0]")
	cmd.Flags().Float64("valence", store.UnsetValence, "Emotional valence in [-1, 1]")
	cmd.Flags().Float64("impact", store.UnsetRelationshipImpact, "Relationship impact")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().StringToString("context", nil, "Context key=value pairs")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	pair := requirePair()
	memType, _ := cmd.Flags().GetString("type")
	tagsStr, _ := cmd.Flags().GetString("tags")
	ctxMap, _ := cmd.Flags().GetStringToString("context")

	content := readContent(args)
	if content == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	params := store.StoreParams{
		Content:    content,
		MemoryType: memType,
		Tags:       splitTags(tagsStr),
		Context:    ctxMap,
	}
	if cmd.Flags().Changed("importance") {
		v, _ := cmd.Flags().GetFloat64("importance")
		params.Importance = &v
	}
	if cmd.Flags().Changed("valence") {
		v, _ := cmd.Flags().GetFloat64("valence")
		params.Valence = &v
	}
	if cmd.Flags().Changed("impact") {
		v, _ := cmd.Flags().GetFloat64("impact")
		params.RelationshipImpact = &v
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	id, err := e.StoreMemory(cmd.Context(), pair, params)
	if err != nil {
		exitErr("put", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", id)
}
