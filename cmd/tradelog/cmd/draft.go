package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradelog/autosave"
	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Show or edit the current session's draft",
	Long: `Work with the draft of the current session bucket. Edits are saved
immediately: a new record is created the first time, later edits update it.

Subcommands:
  show   - Print the draft of a pair
  set    - Set one or more fields
  clear  - Empty the draft and delete its record

Examples:
  tradelog draft set EURUSD weekly="range high" weeklySentiment=bearish
  tradelog draft clear EURUSD`,
}

var draftShowCmd = &cobra.Command{
	Use:   "show <pair>",
	Short: "Print the draft of a pair",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftShow,
}

var draftSetCmd = &cobra.Command{
	Use:   "set <pair> <field=value>...",
	Short: "Set draft fields and save",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runDraftSet,
}

var draftClearCmd = &cobra.Command{
	Use:   "clear <pair>",
	Short: "Empty the draft and delete its record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftClear,
}

func init() {
	rootCmd.AddCommand(draftCmd)
	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftSetCmd)
	draftCmd.AddCommand(draftClearCmd)
}

func runDraftShow(cmd *cobra.Command, args []string) error {
	p, err := lookupPair(args[0])
	if err != nil {
		return err
	}
	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	printDraft(cmd.OutOrStdout(), w.engine, p)
	return nil
}

func runDraftSet(cmd *cobra.Command, args []string) error {
	p, err := lookupPair(args[0])
	if err != nil {
		return err
	}
	patch, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	for _, f := range journal.Fields() {
		v, ok := patch[f]
		if !ok {
			continue
		}
		if err := w.engine.SetField(p.ID, f, v); err != nil {
			return err
		}
	}
	if err := w.engine.Flush(cmd.Context(), p.ID); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	printDraft(cmd.OutOrStdout(), w.engine, p)
	return nil
}

func runDraftClear(cmd *cobra.Command, args []string) error {
	p, err := lookupPair(args[0])
	if err != nil {
		return err
	}
	w, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.engine.Clear(cmd.Context(), p.ID); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %s draft for %s\n", p.Name, w.engine.CurrentKey())
	return nil
}

// parseAssignments reads field=value arguments. An empty value clears the
// field.
func parseAssignments(args []string) (journal.Patch, error) {
	patch := make(journal.Patch, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		f, err := journal.ParseField(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		var probe journal.Notes
		if err := probe.Set(f, value); err != nil {
			return nil, err
		}
		patch[f] = value
	}
	return patch, nil
}

func printDraft(out io.Writer, e *autosave.Engine, p market.Pair) {
	d := e.Draft(p.ID)
	fmt.Fprintf(out, "%s %s  [%s]\n", p.Name, e.CurrentKey(), e.Status(p.ID))
	for _, tf := range journal.Timeframes {
		entry := d.Entry(tf)
		if entry.IsEmpty() {
			continue
		}
		fmt.Fprintf(out, "  %-8s", tf.Label())
		if entry.Sentiment != "" && entry.Sentiment != journal.SentimentNone {
			fmt.Fprintf(out, " (%s)", entry.Sentiment)
		}
		if entry.Note != "" {
			fmt.Fprintf(out, " %s", entry.Note)
		}
		if entry.Screenshot != "" {
			fmt.Fprintf(out, " [screenshot]")
		}
		fmt.Fprintln(out)
	}
}
