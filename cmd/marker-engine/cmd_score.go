package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scoreFlags struct {
	sessionID string
	markerID  string
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Print the aggregated session score of a marker",
	Long: `Aggregates the recorded events of one marker within a session. Events persist
across invocations only when history.sqlitePath is configured.`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFlags.sessionID, "session", "", "Session id")
	scoreCmd.Flags().StringVar(&scoreFlags.markerID, "marker", "", "Marker id")
	_ = scoreCmd.MarkFlagRequired("session")
	_ = scoreCmd.MarkFlagRequired("marker")
}

func runScore(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("session history is disabled: set history.enabled")
	}
	rt, err := newRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	score, err := rt.pipeline.SessionScore(cmd.Context(), scoreFlags.sessionID, scoreFlags.markerID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s raw=%.4f score=%.4f\n", scoreFlags.sessionID, scoreFlags.markerID, score.RawScore, score.Score)
	return nil
}
