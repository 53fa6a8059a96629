package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tathienbao/eventbt/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		out := cmd.OutOrStdout()
		start, end := cfg.DataRange()
		fmt.Fprintln(out, "Configuration is valid!")
		fmt.Fprintf(out, "  Initial capital: $%.2f\n", cfg.Account.InitialCapital)
		fmt.Fprintf(out, "  Instruments:     %s\n", strings.Join(cfg.Market.Instruments, ", "))
		fmt.Fprintf(out, "  Data:            %s %s\n", cfg.Data.Type, dataRange(start.IsZero(), end.IsZero(), cfg.Data.Start, cfg.Data.End))
		fmt.Fprintf(out, "  Strategy:        %s\n", cfg.Strategy.Name)
		fmt.Fprintf(out, "  Execution:       %s\n", cfg.Execution.Type)
		fmt.Fprintf(out, "  Fill pricing:    %s\n", cfg.FillPricing())
		return nil
	},
}

func dataRange(openStart, openEnd bool, start, end string) string {
	if openStart && openEnd {
		return "(all bars)"
	}
	if openStart {
		start = "..."
	}
	if openEnd {
		end = "..."
	}
	return fmt.Sprintf("(%s to %s)", start, end)
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
