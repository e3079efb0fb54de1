package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/audit"
	"github.com/amishk599/jobalert/internal/config"
	"github.com/amishk599/jobalert/internal/discovery"
	"github.com/amishk599/jobalert/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse candidates and filter verdicts interactively (TUI)",
	Long:  "Shows the search term picker, then a split-pane view of every candidate and the ones the filters accepted.",
	RunE:  runAuditCmd,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, os.Stdout)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Audit mode runs a TUI; any log output while it is on screen corrupts the display.
	agg := buildAggregator(cfg, setupLogger(false, io.Discard))
	runAudit(cfg, agg)
	return nil
}

func runAudit(cfg *config.Config, agg *discovery.Aggregator) {
	for {
		choice, err := audit.RunTermPicker(cfg.Search.Terms, cfg.Search.Locations)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if choice < 0 {
			return
		}
		term := cfg.Search.Terms[choice]

		evals, err := audit.RunLoader(term, func(ctx context.Context) ([]model.Evaluation, error) {
			return agg.Inspect(ctx, term, cfg.Search.Locations)
		})
		if err != nil {
			fmt.Printf("Error searching %q: %v\n", term, err)
			continue
		}

		wantQuit, err := audit.RunAuditTUI(term, evals)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
		// else: back to the picker
	}
}
