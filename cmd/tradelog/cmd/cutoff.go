package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var cutoffCmd = &cobra.Command{
	Use:   "cutoff [hour]",
	Short: "Show or set the trading day cutoff hour (UTC)",
	Long: `The cutoff hour is when a new trading date begins, in UTC. Instants at
or after the cutoff belong to the next calendar day. Values outside 0-23 are
clamped.

Examples:
  tradelog cutoff
  tradelog cutoff 21`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCutoff,
}

func init() {
	rootCmd.AddCommand(cutoffCmd)
}

func runCutoff(cmd *cobra.Command, args []string) error {
	prefs, err := openPreferences()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%02d:00 UTC\n", prefs.Cutoff())
		return nil
	}

	h, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("hour: %w", err)
	}
	h, err = prefs.SetCutoff(h)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Trading day starts at %02d:00 UTC\n", h)
	return nil
}
