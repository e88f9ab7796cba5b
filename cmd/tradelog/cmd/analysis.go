package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
	"github.com/rustyeddy/tradelog/screenshot"
	"github.com/rustyeddy/tradelog/tradingday"
)

var analysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Show, edit, delete or export saved analyses",
	Long: `Work with saved analysis records.

Subcommands:
  show    - Print one analysis as an Org-mode report
  edit    - Change one field of a saved analysis
  delete  - Delete a saved analysis
  export  - Export analyses as Org-mode or CSV

Examples:
  tradelog analysis show 01JM3ZQ8...
  tradelog analysis edit 01JM3ZQ8... dailySentiment bearish
  tradelog analysis export --format csv --output analyses.csv`,
}

var analysisShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one analysis as an Org-mode report",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalysisShow,
}

var analysisEditCmd = &cobra.Command{
	Use:   "edit <id> <field> [value]",
	Short: "Change one field of a saved analysis",
	Long: `Edit writes a single field of a past analysis immediately. Fields are
named like weekly, weeklyScreenshot, weeklySentiment, daily, fourHr, oneHr.
Leaving out the value clears the field.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runAnalysisEdit,
}

var analysisDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalysisDelete,
}

var analysisExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export analyses as Org-mode or CSV",
	Args:  cobra.NoArgs,
	RunE:  runAnalysisExport,
}

var (
	exportFormat string
	exportOutput string
	exportPair   string
	exportDay    string
)

func init() {
	rootCmd.AddCommand(analysisCmd)
	analysisCmd.AddCommand(analysisShowCmd)
	analysisCmd.AddCommand(analysisEditCmd)
	analysisCmd.AddCommand(analysisDeleteCmd)
	analysisCmd.AddCommand(analysisExportCmd)

	analysisExportCmd.Flags().StringVar(&exportFormat, "format", "org", "output format (org or csv)")
	analysisExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (required for csv)")
	analysisExportCmd.Flags().StringVarP(&exportPair, "pair", "p", "", "only export this pair")
	analysisExportCmd.Flags().StringVar(&exportDay, "day", "", "only export this trading date (YYYY-MM-DD)")
}

func runAnalysisShow(cmd *cobra.Command, args []string) error {
	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	a, err := w.store.GetAnalysis(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get analysis: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatAnalysisOrg(a, reportOptions(cmd.Context(), market.Name(a.PairID), w.cutoff)))
	return nil
}

func runAnalysisEdit(cmd *cobra.Command, args []string) error {
	f, err := journal.ParseField(args[1])
	if err != nil {
		return err
	}
	var value string
	if len(args) == 3 {
		value = args[2]
	}

	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.engine.UpdateHistorical(cmd.Context(), args[0], f, value); err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated %s of %s\n", f, args[0])
	return nil
}

func runAnalysisDelete(cmd *cobra.Command, args []string) error {
	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.engine.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
	return nil
}

func runAnalysisExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "org" && exportFormat != "csv" {
		return fmt.Errorf("unknown format %q (supported: org, csv)", exportFormat)
	}
	if exportFormat == "csv" && exportOutput == "" {
		return fmt.Errorf("--output is required for csv")
	}

	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	var filter journal.Filter
	if exportPair != "" {
		p, err := lookupPair(exportPair)
		if err != nil {
			return err
		}
		filter.PairID = p.ID
	}
	if exportDay != "" {
		filter.From, filter.To, err = tradingday.Bounds(exportDay, w.cutoff)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
	}

	list, err := w.store.ListAnalyses(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("query analyses: %w", err)
	}

	if exportFormat == "csv" {
		if err := exportCSV(exportOutput, list); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d analyses to %s\n", len(list), exportOutput)
		return nil
	}

	out := cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	return exportOrg(cmd.Context(), out, list, w.cutoff)
}

func exportCSV(path string, list []journal.Analysis) error {
	c, err := journal.NewCSV(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	for _, a := range list {
		if err := c.WriteAnalysis(a); err != nil {
			c.Close()
			return fmt.Errorf("write csv: %w", err)
		}
	}
	return c.Close()
}

func exportOrg(ctx context.Context, out io.Writer, list []journal.Analysis, cutoff int) error {
	for i, a := range list {
		if i > 0 {
			if _, err := fmt.Fprint(out, "\n\n"); err != nil {
				return err
			}
		}
		opt := reportOptions(ctx, market.Name(a.PairID), cutoff)
		if _, err := fmt.Fprint(out, journal.FormatAnalysisOrg(a, opt)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(out)
	return err
}

// reportOptions links screenshots through signed URLs when a signing key is
// configured. Otherwise raw keys are linked.
func reportOptions(ctx context.Context, pairName string, cutoff int) journal.ReportOptions {
	opt := journal.ReportOptions{PairName: pairName, CutoffHourUTC: cutoff}
	if cfg.Screenshots.SigningKey == "" {
		return opt
	}
	blobs, err := screenshot.NewFileStore(cfg.Screenshots.Dir, cfg.Screenshots.BaseURL, []byte(cfg.Screenshots.SigningKey))
	if err != nil {
		logger.Warn("screenshot links unavailable", "error", err)
		return opt
	}
	opt.Screenshot = screenshot.Resolver(ctx, blobs, cfg.ScreenshotTTL())
	return opt
}
