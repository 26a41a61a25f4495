package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/miradorstack/marker-engine/internal/models"
)

var analyzeFlags struct {
	schemaID  string
	sessionID string
	compact   bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Analyse one text locally and print the result envelope as JSON",
	Long: `Runs the full three-phase pipeline in-process. The text is taken from the
argument, or read from stdin when no argument is given.

Usage:
  marker-engine analyze "Ich bin müde, aber ich will reden."
  echo "Ich bin müde" | marker-engine analyze --schema default`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.schemaID, "schema", "", "Restrict detection to one schema id")
	f.StringVar(&analyzeFlags.sessionID, "session", "", "Session id for time-aware scores")
	f.BoolVar(&analyzeFlags.compact, "compact", false, "Print compact JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	text, err := inputText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.service.AnalyzeRequest(cmd.Context(), models.AnalysisRequest{
		Text:      text,
		SchemaID:  analyzeFlags.schemaID,
		SessionID: analyzeFlags.sessionID,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !analyzeFlags.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}

func inputText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if f, ok := stdin.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("text is required\n\nUsage: marker-engine analyze <text>\n       echo <text> | marker-engine analyze")
		}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
