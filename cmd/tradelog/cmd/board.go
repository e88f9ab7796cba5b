package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
	"github.com/rustyeddy/tradelog/watchlist"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the watchlist",
	Long: `Board lists every pair with its flag and the trading date of its latest
analysis, filtered by flag and grouped by the chosen sort key.

Sort keys: symbol, category (default), date, flag

Examples:
  tradelog board
  tradelog board --sort date
  tradelog board --sort flag --flags red,green`,
	Args: cobra.NoArgs,
	RunE: runBoard,
}

var (
	boardSort  string
	boardFlags []string
)

func init() {
	rootCmd.AddCommand(boardCmd)

	boardCmd.Flags().StringVarP(&boardSort, "sort", "s", string(watchlist.DefaultSort), "sort key (symbol, category, date, flag)")
	boardCmd.Flags().StringSliceVarP(&boardFlags, "flags", "f", nil, "only show pairs with these flags")
}

func runBoard(cmd *cobra.Command, args []string) error {
	key, err := watchlist.ParseSortKey(boardSort)
	if err != nil {
		return err
	}
	filters, err := parseFilters(boardFlags)
	if err != nil {
		return err
	}

	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	flags := w.flags.Flags()
	latest := w.engine.LatestDates(w.cutoff)
	res := watchlist.Build(market.Pairs, flags, latest, watchlist.Options{
		Filters:       filters,
		Sort:          key,
		CutoffHourUTC: w.cutoff,
		Now:           time.Now(),
	})
	printBoard(cmd.OutOrStdout(), res, flags, latest)
	return nil
}

func parseFilters(values []string) (watchlist.FilterSet, error) {
	var set watchlist.FilterSet
	for _, v := range values {
		f, err := journal.ParseFlag(strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		if !set.Contains(f) {
			set = set.Toggle(f)
		}
	}
	return set, nil
}

func printBoard(out io.Writer, res watchlist.Result, flags map[string]journal.Flag, latest map[string]string) {
	for i, g := range res.Groups {
		if g.Heading != "" {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%s\n", g.Heading)
		}
		for _, p := range g.Pairs {
			flag := flags[p.ID]
			if flag == "" {
				flag = journal.FlagNone
			}
			date := latest[p.ID]
			if date == "" {
				date = "-"
			}
			fmt.Fprintf(out, "  %-8s %-8s %-7s %s\n", p.Name, p.Category, flag, date)
		}
	}
	fmt.Fprintf(out, "\n%d of %d pairs\n", res.TotalVisible, res.Total)
}
