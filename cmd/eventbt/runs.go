package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tathienbao/eventbt/internal/config"
	"github.com/tathienbao/eventbt/internal/persistence"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journaled runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if !cfg.Persistence.Enabled {
			return fmt.Errorf("persistence is disabled in %s", configPath)
		}

		repo, err := persistence.Open(cmd.Context(), cfg.Persistence.Type, cfg.PersistenceTarget())
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() { _ = repo.Close() }()

		runs, err := repo.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTRATEGY\tSTATUS\tFINISHED\tEND EQUITY\tRETURN\tSHARPE\tMAX DD\tFILLS")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s%%\t%s\t%s%%\t%d\n",
				r.ID, r.Strategy, r.Status, r.FinishedAt.Format("2006-01-02 15:04"),
				r.EndEquity.StringFixed(2),
				r.TotalReturn.Shift(2).StringFixed(2),
				r.SharpeRatio.StringFixed(2),
				r.MaxDrawdown.Shift(2).StringFixed(2),
				r.Fills,
			)
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to list, 0 for all")
	rootCmd.AddCommand(runsCmd)
}
