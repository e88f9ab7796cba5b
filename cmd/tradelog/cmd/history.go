package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
	"github.com/rustyeddy/tradelog/tradingday"
)

var historyCmd = &cobra.Command{
	Use:   "history <pair>",
	Short: "List past analyses of a pair",
	Long: `History lists a pair's analyses newest first, excluding the current
session. With --day it lists the analyses of one trading date instead.

Examples:
  tradelog history EURUSD
  tradelog history EURUSD --day 2025-02-07 --org`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var (
	historyDay string
	historyOrg bool
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyDay, "day", "", "trading date (YYYY-MM-DD)")
	historyCmd.Flags().BoolVar(&historyOrg, "org", false, "print full Org-mode reports")
}

func runHistory(cmd *cobra.Command, args []string) error {
	p, err := lookupPair(args[0])
	if err != nil {
		return err
	}

	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	list := w.engine.History(p.ID)
	if historyDay != "" {
		from, to, err := tradingday.Bounds(historyDay, w.cutoff)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		list, err = w.store.ListAnalyses(cmd.Context(), journal.Filter{PairID: p.ID, From: from, To: to})
		if err != nil {
			return fmt.Errorf("query analyses: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if historyOrg {
		fmt.Fprintln(out, journal.FormatAnalysesOrg(list, reportOptions(cmd.Context(), p.Name, w.cutoff)))
		return nil
	}
	printSummaries(out, list, w.cutoff)
	return nil
}

func printSummaries(out io.Writer, list []journal.Analysis, cutoff int) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no analyses")
		return
	}
	for _, a := range list {
		fmt.Fprintf(out, "%s  %s  %s  %s\n",
			a.ID,
			tradingday.Date(a.Timestamp, cutoff),
			a.Timestamp.UTC().Format("15:04"),
			journal.Summary(a.Notes, 40),
		)
	}
}

func lookupPair(s string) (market.Pair, error) {
	p, ok := market.Lookup(s)
	if !ok {
		return market.Pair{}, fmt.Errorf("unknown pair %q", s)
	}
	return p, nil
}
