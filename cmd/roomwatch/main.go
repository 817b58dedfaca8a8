// Command roomwatch polls a hotel booking page and notifies when rooms are
// available during a notification window. It is meant to run from cron or
// a systemd timer; every invocation is one run.
//
// Usage:
//
//	roomwatch --config roomwatch.yaml          # same as run
//	roomwatch run --config roomwatch.yaml      # gate, read, notify
//	roomwatch run --force --dry-run            # read now, print instead of sending
//	roomwatch check --at 2026-10-17T15:05:00-07:00
//	roomwatch read                             # print the counters
//	roomwatch history --limit 20               # recent runs (sqlite marker)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/roomwatch/roomwatch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	os.Exit(roomwatch.ExitCode(err))
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	// extra is appended to the options every subcommand builds its
	// pipeline with.
	extra []roomwatch.Option
}

func newRootCmd(stdout, stderr io.Writer, extra ...roomwatch.Option) *cobra.Command {
	g := globalFlags{extra: extra}
	var opts roomwatch.RunOptions
	root := &cobra.Command{
		Use:           "roomwatch",
		Short:         "roomwatch polls hotel room availability and notifies in time windows.",
		Long:          "roomwatch polls hotel room availability and notifies in time windows.\nWithout a subcommand it behaves like run.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE(&g, &opts, stdout, stderr),
	}
	runFlags(root, &opts)
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a .yaml/.yml/.json config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "json", "log format: json, text")

	root.AddCommand(
		newRunCmd(&g, stdout, stderr),
		newCheckCmd(&g, stdout, stderr),
		newReadCmd(&g, stdout, stderr),
		newHistoryCmd(&g, stdout, stderr),
	)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lv}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// setup loads configuration and builds the pipeline. Failures are logged
// here so every subcommand reports them the same way.
func setup(g *globalFlags, stdout, stderr io.Writer) (*roomwatch.Pipeline, *slog.Logger, error) {
	logger := newLogger(stderr, g.logLevel, g.logFormat)
	cfg, err := roomwatch.LoadConfig(g.configPath)
	if err != nil {
		logger.Error("roomwatch: config", "error", err)
		return nil, logger, err
	}
	opts := append([]roomwatch.Option{roomwatch.WithStdout(stdout)}, g.extra...)
	p, err := roomwatch.New(cfg, logger, opts...)
	if err != nil {
		logger.Error("roomwatch: setup", "error", err)
		return nil, logger, err
	}
	return p, logger, nil
}

func newRunCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var opts roomwatch.RunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one poll: check the window, read the page, notify.",
		Args:  cobra.NoArgs,
		RunE:  runE(g, &opts, stdout, stderr),
	}
	runFlags(cmd, &opts)
	return cmd
}

func runFlags(cmd *cobra.Command, opts *roomwatch.RunOptions) {
	cmd.Flags().BoolVar(&opts.Force, "force", false, "ignore notification windows and the last-sent marker")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the notification instead of sending it")
}

func runE(g *globalFlags, opts *roomwatch.RunOptions, stdout, stderr io.Writer) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		p, logger, err := setup(g, stdout, stderr)
		if err != nil {
			return err
		}
		defer p.Close()

		res, err := p.Run(cmd.Context(), *opts)
		attrs := []any{"run_id", res.RunID, "status", res.Status, "label", res.Label,
			"duration", res.Duration.Round(time.Millisecond).String()}
		if res.Reading != nil {
			attrs = append(attrs, "total", res.Reading.Total)
		}
		logger.Info("roomwatch: run finished", attrs...)
		return err
	}
}

type checkOutput struct {
	Proceed bool   `json:"proceed"`
	Label   string `json:"label,omitempty"`
	Reason  string `json:"reason"`
	Marker  string `json:"marker,omitempty"`
	At      string `json:"at"`
}

func newCheckCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var atFlag string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print whether a run would proceed now (or at --at).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, _, err := setup(g, stdout, stderr)
			if err != nil {
				return err
			}
			defer p.Close()

			var d roomwatch.Decision
			if atFlag != "" {
				t, err := time.Parse(time.RFC3339, atFlag)
				if err != nil {
					return fmt.Errorf("%w: --at: %v", roomwatch.ErrConfig, err)
				}
				d = p.CheckAt(cmd.Context(), t)
			} else {
				d = p.Check(cmd.Context())
			}
			return writeJSON(stdout, checkOutput{
				Proceed: d.Proceed,
				Label:   d.Label,
				Reason:  d.Reason,
				Marker:  d.Key,
				At:      d.At.Format(time.RFC3339),
			})
		},
	}
	cmd.Flags().StringVar(&atFlag, "at", "", "evaluate at this RFC 3339 instant instead of now")
	return cmd
}

type readOutput struct {
	Total   int      `json:"total"`
	Values  []int    `json:"values"`
	Samples []sample `json:"samples"`
}

type sample struct {
	Selector string `json:"selector"`
	Value    int    `json:"value"`
	Found    bool   `json:"found"`
	Stable   bool   `json:"stable"`
	Ticks    int    `json:"ticks"`
}

func newReadCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Load the page and print the stabilized counters without notifying.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, logger, err := setup(g, stdout, stderr)
			if err != nil {
				return err
			}
			defer p.Close()

			r, err := p.Read(cmd.Context())
			if err != nil {
				logger.Error("roomwatch: read", "error", err)
				return err
			}
			out := readOutput{Total: r.Total, Values: r.Values}
			for _, s := range r.Samples {
				out.Samples = append(out.Samples, sample{
					Selector: s.Selector, Value: s.Value, Found: s.Found, Stable: s.Stable, Ticks: s.Ticks,
				})
			}
			return writeJSON(stdout, out)
		},
	}
}

type historyOutput struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Label     string `json:"label,omitempty"`
	Total     int    `json:"total"`
	Values    []int  `json:"values,omitempty"`
	Error     string `json:"error,omitempty"`
	StartedAt string `json:"started_at"`
	Duration  string `json:"duration"`
}

func newHistoryCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent runs recorded by the sqlite marker backend.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, logger, err := setup(g, stdout, stderr)
			if err != nil {
				return err
			}
			defer p.Close()

			runs, err := p.History(cmd.Context(), limit)
			if err != nil {
				logger.Error("roomwatch: history", "error", err)
				return err
			}
			out := make([]historyOutput, 0, len(runs))
			for _, r := range runs {
				out = append(out, historyOutput{
					RunID:     r.RunID,
					Status:    r.Status,
					Label:     r.Label,
					Total:     r.Total,
					Values:    r.Values,
					Error:     r.Error,
					StartedAt: r.StartedAt.Format(time.RFC3339),
					Duration:  r.Duration.Round(time.Millisecond).String(),
				})
			}
			return writeJSON(stdout, out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to print, newest first")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
