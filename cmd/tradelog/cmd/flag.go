package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
)

var flagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Show or set pair flags",
	Long: `Flags mark a pair's bias on the watchlist.

Flags:
  red, orange, green, blue, cyan, pink, purple, none

Examples:
  tradelog flag list
  tradelog flag set EURUSD green`,
}

var flagSetCmd = &cobra.Command{
	Use:   "set <pair> <flag>",
	Short: "Set the flag of a pair",
	Args:  cobra.ExactArgs(2),
	RunE:  runFlagSet,
}

var flagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flagged pairs",
	Args:  cobra.NoArgs,
	RunE:  runFlagList,
}

func init() {
	rootCmd.AddCommand(flagCmd)
	flagCmd.AddCommand(flagSetCmd)
	flagCmd.AddCommand(flagListCmd)
}

func runFlagSet(cmd *cobra.Command, args []string) error {
	p, err := lookupPair(args[0])
	if err != nil {
		return err
	}
	f, err := journal.ParseFlag(args[1])
	if err != nil {
		return err
	}

	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.flags.Set(p.ID, f); err != nil {
		return err
	}
	w.flags.Wait()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s flagged %s\n", p.Name, f.Label())
	return nil
}

func runFlagList(cmd *cobra.Command, args []string) error {
	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	flags := w.flags.Flags()
	out := cmd.OutOrStdout()
	n := 0
	for _, f := range journal.Flags {
		if f == journal.FlagNone {
			continue
		}
		for _, p := range market.Pairs {
			if flags[p.ID] == f {
				fmt.Fprintf(out, "  %-8s %s\n", p.Name, f.Label())
				n++
			}
		}
	}
	if n == 0 {
		fmt.Fprintln(out, "no flagged pairs")
	}
	return nil
}
