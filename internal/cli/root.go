// Package cli implements the persona-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/config"
	"github.com/rcliao/persona-memory/internal/engine"
	"github.com/rcliao/persona-memory/internal/logging"
	"github.com/rcliao/persona-memory/internal/model"
)

var (
	cfgPath     string
	dataDir     string
	characterID string
	userID      string
	formatFlag  string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "persona-memory",
	Short: "Conversational memory for characters",
	Long:  "Per character/user conversational memory. Scores utterances, extracts personal details, tracks the relationship and assembles context. SQLite-backed, one file per pair.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: $PERSONA_MEMORY_CONFIG)")
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config, default ~/.persona-memory)")
	RootCmd.PersistentFlags().StringVarP(&characterID, "character", "c", "", "Character id")
	RootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User id")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func getConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return os.Getenv(config.EnvPrefix + "_CONFIG")
}

func openEngine() (*engine.Engine, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format,
		logging.Writer(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, os.Stderr))
	if err != nil {
		return nil, err
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	return engine.New(opts, logger)
}

func requirePair() model.Pair {
	if characterID == "" || userID == "" {
		exitErr("pair", fmt.Errorf("--character and --user are required"))
	}
	return model.Pair{CharacterID: characterID, UserID: userID}
}

func printJSON(w io.Writer, v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// readContent returns args joined, or stdin when it is piped.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " "))
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return strings.TrimSpace(string(b))
	}
	return ""
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
