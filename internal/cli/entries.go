package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/questlog/internal/engine"
)

func newLogCmd(flags *globalFlags) *cobra.Command {
	var (
		actions  []string
		duration string
	)
	cmd := &cobra.Command{
		Use:   "log [text]",
		Short: "Record a journal entry",
		Long: "Record what you did. With --action the listed actions earn experience directly; " +
			"otherwise the text is analyzed by the configured LLM. Use - to read the text from stdin.",
		Example: `  questlog log "Refactored the payment service for two hours"
  questlog log -a Stretch -a Breathe -d "20 mins"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := entryText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			sub, err := a.svc.Submit(cmd.Context(), a.userID(), engine.EntryInput{
				Text:     text,
				Actions:  actions,
				Duration: duration,
			})
			if errors.Is(err, engine.ErrEmptyEntry) {
				return fmt.Errorf("nothing to log: give some text or at least one --action")
			}
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), sub.Result)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&actions, "action", "a", nil, "action performed (repeatable); skips AI analysis")
	cmd.Flags().StringVarP(&duration, "duration", "d", "", `effort, e.g. "45 mins" or "2 hours"`)
	return cmd
}

// entryText joins the args, or reads stdin when the only arg is "-".
func entryText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(bufio.NewReader(stdin))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(strings.Join(args, " ")), nil
}

func printResult(w io.Writer, r engine.Result) {
	if r.Source == engine.SourceNone {
		fmt.Fprintln(w, "Entry recorded. No actions were recognized, so no experience was earned.")
		return
	}
	if len(r.ResolvedActions) > 0 {
		fmt.Fprintf(w, "Actions: %s\n", strings.Join(r.ResolvedActions, ", "))
	}
	if r.Multiplier != 1 {
		fmt.Fprintf(w, "Duration: %s (x%.2f)\n", r.Duration, r.Multiplier)
	}
	fmt.Fprintf(w, "EXP gained: %.2f\n", r.TotalIncrease)
	for _, label := range r.NodeIncreases.Sorted() {
		fmt.Fprintf(w, "  +%-7.2f %s\n", r.NodeIncreases.Get(label), label)
	}
	for _, up := range r.LevelUps {
		fmt.Fprintf(w, "Level up! %s %d -> %d\n", up.Label, up.From, up.To)
	}
}

func newImportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import journal entries from a JSONL file",
		Long: `Import entries, one JSON object per line:
  {"text": "Ran 5k", "duration": "30 mins", "date": "2026-02-28T07:00:00Z"}
  {"actions": ["Stretch", "Breathe"]}
Use - to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import: %w", err)
				}
				defer f.Close()
				r = f
			}

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.svc.Import(cmd.Context(), a.userID(), r)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d entries (%.2f EXP, %d levels gained)\n",
				report.Imported, report.TotalIncrease, report.LevelsGained)
			if report.Empty > 0 {
				fmt.Fprintf(out, "Skipped %d empty entries\n", report.Empty)
			}
			if report.Failed > 0 {
				fmt.Fprintf(out, "Failed %d entries (text kept)\n", report.Failed)
			}
			for _, le := range report.Malformed {
				fmt.Fprintf(out, "Skipped %s\n", le.Error())
			}
			return nil
		},
	}
}

func newClearCmd(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the user's graph, stats and entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.Clear(cmd.Context(), a.userID()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared all data for %s\n", a.userID())
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
