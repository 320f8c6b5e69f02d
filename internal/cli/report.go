package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/redpesk-addons/afb-jscli/internal/journal"
)

// RunReport is the JSON output of report for one run.
type RunReport struct {
	Run     journal.RunInfo  `json:"run"`
	Results []journal.Result `json:"results"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <journal> [run]",
		Short: "Show runs stored in a journal",
		Long: `List the runs of a journal, or replay the assertions of one run as TAP.

The run is a run id or "last" for the most recent run.

Examples:
  afb-jscli report results.db
  afb-jscli report results.db last
  afb-jscli report results.db 01928c4e-... --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			run := ""
			if len(args) == 2 {
				run = args[1]
			}
			return runReport(rootOpts, args[0], run, cmd)
		},
	}
	return cmd
}

func runReport(opts *RootOptions, path, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := commandContext(cmd)

	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeJournal, fmt.Sprintf("journal not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "cannot open journal", err)
	}
	defer j.Close()

	if runID == "" {
		runs, err := j.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot list runs", err)
		}
		return formatter.Success(formatRuns(runs), runs)
	}

	var info journal.RunInfo
	if runID == "last" {
		info, err = j.Last(ctx)
	} else {
		info, err = j.Lookup(ctx, runID)
	}
	if errors.Is(err, journal.ErrUnknownRun) || errors.Is(err, journal.ErrNoRuns) {
		_ = formatter.Error(ErrCodeUnknownRun, err.Error(), nil)
		return WrapExitError(ExitCommandError, "no such run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read run", err)
	}

	results, err := j.Results(ctx, info.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read results", err)
	}
	return formatter.Success(formatResults(info, results), RunReport{Run: info, Results: results})
}

func formatRuns(runs []journal.RunInfo) string {
	if len(runs) == 0 {
		return "No runs.\n"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSCENARIO\tSTARTED\tTESTS\tFAILURES\tEXIT")
	for _, r := range runs {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprint(*r.ExitCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Scenario, r.StartedAt.Format(time.RFC3339), r.Tests, r.Failures, exit)
	}
	w.Flush()
	return b.String()
}

// formatResults replays a run as TAP.
func formatResults(info journal.RunInfo, results []journal.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# run %s (%s) started %s\n", info.ID, info.Scenario, info.StartedAt.Format(time.RFC3339))
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "not ok"
		}
		fmt.Fprintf(&b, "%s %d %s\n", status, r.Seq, r.Description)
	}
	fmt.Fprintf(&b, "1..%d\n", len(results))
	return b.String()
}
