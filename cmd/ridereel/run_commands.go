package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ridereel/internal/pipeline"
	"ridereel/internal/preflight"
)

type runFlags struct {
	skipPreflight bool
	noProgress    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var from, to string
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline, or a range of it with --from/--to",
		Long: "Run executes flatten, align, extract, analyze, select, build and concat in order.\n" +
			"Each stage resumes from the artifacts the previous stage left in the working directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, ctx, from, to, flags)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First stage to run")
	cmd.Flags().StringVar(&to, "to", "", "Last stage to run")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-preflight", false, "Start even when preflight checks fail")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable progress bars")
	return cmd
}

// newStageCommands exposes every stage as its own subcommand. Single stages
// skip the preflight gate; they fail on their own missing inputs instead.
func newStageCommands(ctx *commandContext) []*cobra.Command {
	var cmds []*cobra.Command
	for _, st := range pipeline.Stages() {
		name := st.Name
		var flags runFlags
		flags.skipPreflight = true
		cmd := &cobra.Command{
			Use:   name,
			Short: st.Description,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStages(cmd, ctx, name, name, flags)
			},
		}
		cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable progress bars")
		cmds = append(cmds, cmd)
	}
	return cmds
}

func runStages(cmd *cobra.Command, ctx *commandContext, from, to string, flags runFlags) error {
	out := cmd.OutOrStdout()
	if !flags.skipPreflight {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return err
		}
		if blocking := preflight.Blocking(preflight.RunAll(cmd.Context(), cfg)); len(blocking) > 0 {
			for _, r := range blocking {
				fmt.Fprintf(out, "preflight: %s: %s\n", r.Name, r.Detail)
			}
			return errors.New("preflight checks failed; fix the above or pass --skip-preflight")
		}
	}

	progress := newProgressReporter(os.Stderr, flags.noProgress)
	sess, err := ctx.openSession(progress)
	if err != nil {
		return err
	}
	defer sess.Close()

	results, runErr := pipeline.Run(cmd.Context(), sess.env, from, to)
	progress.Finish()
	if len(results) > 0 {
		fmt.Fprintln(out, renderResults(sess.env.RunID, results))
	}
	if runErr != nil {
		return runErr
	}
	printOutputs(out, sess.env)
	return nil
}

func renderResults(runID string, results []pipeline.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		detail := r.Outcome.Detail
		if r.Err != nil {
			status = "failed"
			detail = r.Err.Error()
		}
		rows = append(rows, []string{
			r.Stage,
			status,
			fmt.Sprintf("%d", r.Outcome.Items),
			fmt.Sprintf("%d", r.Outcome.Skipped),
			r.Duration.Round(100 * time.Millisecond).String(),
			detail,
		})
	}
	return renderTable("Run "+shortID(runID),
		[]string{"Stage", "Status", "Items", "Skipped", "Duration", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

// printOutputs lists the final segments when the run reached concat.
func printOutputs(out io.Writer, env *pipeline.Env) {
	manifest, err := pipeline.ReadSegmentManifest(env.Layout.SegmentManifest())
	if err != nil || manifest.RunID != env.RunID {
		return
	}
	for _, seg := range manifest.Segments {
		fmt.Fprintf(out, "wrote %s (%d clips)\n", seg.Output, len(seg.Clips))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
