package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ridereel/internal/config"
	"ridereel/internal/pipeline"
	"ridereel/internal/project"
	"ridereel/internal/records"
	"ridereel/internal/runstate"
)

type artifactStatus struct {
	Stage    string     `json:"stage"`
	Label    string     `json:"label"`
	Path     string     `json:"path"`
	Present  bool       `json:"present"`
	Size     int64      `json:"size_bytes,omitempty"`
	Modified *time.Time `json:"modified,omitempty"`
}

type stageStatus struct {
	Stage   string `json:"stage"`
	Ready   bool   `json:"ready"`
	Missing string `json:"missing,omitempty"`
}

type selectionStatus struct {
	Pool        int `json:"pool"`
	Recommended int `json:"recommended"`
}

type statusReport struct {
	Project   string              `json:"project"`
	Config    string              `json:"config,omitempty"`
	Artifacts []artifactStatus    `json:"artifacts"`
	Stages    []stageStatus       `json:"stages"`
	Selection *selectionStatus    `json:"selection,omitempty"`
	Runs      []runstate.Run      `json:"runs,omitempty"`
	LastRun   []runstate.StageRun `json:"last_run_stages,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show artifacts, stage readiness and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report, err := buildStatus(cmd.Context(), cfg, limit)
			if err != nil {
				return err
			}
			if ctx.configExists {
				report.Config = ctx.configPath
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			renderStatus(cmd.OutOrStdout(), report, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of tables")
	cmd.Flags().IntVar(&limit, "runs", 5, "Number of recent runs to list")
	return cmd
}

func buildStatus(ctx context.Context, cfg *config.Config, limit int) (statusReport, error) {
	layout := project.NewLayout(cfg)
	report := statusReport{Project: layout.Root}

	for _, st := range pipeline.Stages() {
		for _, a := range st.Produces(layout) {
			entry := artifactStatus{Stage: st.Name, Label: a.Label, Path: a.Path}
			if info, err := os.Stat(a.Path); err == nil && !info.IsDir() {
				mod := info.ModTime()
				entry.Present = info.Size() > 0
				entry.Size = info.Size()
				entry.Modified = &mod
			}
			report.Artifacts = append(report.Artifacts, entry)
		}
		health := st.Check(layout)
		s := stageStatus{Stage: st.Name, Ready: health.Ready()}
		if !s.Ready {
			s.Missing = health.Detail()
		}
		report.Stages = append(report.Stages, s)
	}

	if frames, err := records.ReadFrames(layout.Select()); err == nil {
		sel := &selectionStatus{Pool: len(frames)}
		for _, f := range frames {
			if f.Recommended {
				sel.Recommended++
			}
		}
		report.Selection = sel
	}

	// Status never creates the history database.
	if _, err := os.Stat(layout.RunDB()); err != nil {
		return report, nil
	}
	store, err := runstate.Open(cfg)
	if err != nil {
		return report, fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()

	runs, err := store.RecentRuns(ctx, limit)
	if err != nil {
		return report, err
	}
	report.Runs = runs
	if len(runs) > 0 {
		stages, err := store.Stages(ctx, runs[0].ID)
		if err != nil {
			return report, err
		}
		report.LastRun = stages
	}
	return report, nil
}

func renderStatus(out io.Writer, report statusReport, now time.Time) {
	fmt.Fprintf(out, "Project: %s\n", report.Project)
	if report.Config != "" {
		fmt.Fprintf(out, "Config:  %s\n", report.Config)
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(report.Artifacts))
	for _, a := range report.Artifacts {
		size, modified := "-", "missing"
		if a.Modified != nil {
			size = humanize.Bytes(uint64(a.Size))
			modified = humanize.RelTime(*a.Modified, now, "ago", "from now")
		}
		rows = append(rows, []string{a.Stage, a.Label, size, modified})
	}
	fmt.Fprintln(out, renderTable("Artifacts",
		[]string{"Stage", "Artifact", "Size", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))

	rows = rows[:0]
	for _, s := range report.Stages {
		state := "ready"
		if !s.Ready {
			state = s.Missing
		}
		rows = append(rows, []string{s.Stage, state})
	}
	fmt.Fprintln(out, renderTable("Stages", []string{"Stage", "Inputs"}, rows, nil))

	if report.Selection != nil {
		fmt.Fprintf(out, "Selection: %d recommended of %d pooled moments\n\n", report.Selection.Recommended, report.Selection.Pool)
	}

	if len(report.Runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return
	}
	rows = rows[:0]
	for _, r := range report.Runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.From + ".." + r.To,
			string(r.Status),
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			formatDuration(r.Duration()),
			firstLine(r.Error),
		})
	}
	fmt.Fprintln(out, renderTable("Recent runs",
		[]string{"Run", "Stages", "Status", "Started", "Duration", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))

	rows = rows[:0]
	for _, s := range report.LastRun {
		detail := s.Detail
		if s.Error != "" {
			detail = firstLine(s.Error)
		}
		rows = append(rows, []string{
			s.Stage,
			string(s.Status),
			humanize.Comma(int64(s.Items)),
			humanize.Comma(int64(s.Skipped)),
			formatDuration(s.Duration()),
			detail,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable("Run "+shortID(report.Runs[0].ID),
			[]string{"Stage", "Status", "Items", "Skipped", "Duration", "Detail"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
		))
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Millisecond).String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
