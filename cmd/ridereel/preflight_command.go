package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ridereel/internal/preflight"
)

const preflightLabelWidth = 20

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check footage, GPX, directories and external tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			results := preflight.RunAll(cmd.Context(), cfg)
			renderPreflight(out, results, shouldColorize(out))
			if blocking := preflight.Blocking(results); len(blocking) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(blocking))
			}
			return nil
		},
	}
}

func renderPreflight(out io.Writer, results []preflight.Result, colorize bool) {
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed, color.Bold)
	for _, c := range []*color.Color{ok, warn, fail} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for _, r := range results {
		mark := ok.Sprint("OK")
		switch {
		case r.Blocking():
			mark = fail.Sprint("FAIL")
		case !r.Passed:
			mark = warn.Sprint("WARN")
		}
		fmt.Fprintf(out, "  %-*s [%s] %s\n", preflightLabelWidth, r.Name+":", mark, r.Detail)
	}
}
