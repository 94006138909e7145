// Package main is the entry point of the flowpanel command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/flowpanel/internal/app"
	"github.com/dshills/flowpanel/internal/config"
	"github.com/dshills/flowpanel/internal/event"
	"github.com/dshills/flowpanel/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowpanel",
		Short:         "Reactive flowchart panel driven by metric rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newChannelsCmd(), newVersionCmd())
	return root
}

type runFlags struct {
	config  string
	records string
	rules   string
	series  string
	preview bool
	level   string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load the data files and run the render loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPanel(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.config, "config", "c", "flowpanel.toml", "Path to the TOML config file")
	flags.StringVar(&f.records, "records", "", "Diagram records file (YAML)")
	flags.StringVar(&f.rules, "rules", "", "Rules file (YAML)")
	flags.StringVar(&f.series, "series", "", "Metric series file (YAML)")
	flags.BoolVar(&f.preview, "preview", false, "Draw the diagrams in the terminal")
	flags.StringVar(&f.level, "log-level", "", "Override the log level")
	return cmd
}

func runPanel(cmd *cobra.Command, f runFlags) error {
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("records") {
		cfg.Files.Records = f.records
	}
	if flags.Changed("rules") {
		cfg.Files.Rules = f.rules
	}
	if flags.Changed("series") {
		cfg.Files.Series = f.series
	}
	if flags.Changed("preview") {
		cfg.Preview.Enabled = f.preview
	}
	if f.level != "" {
		cfg.Log.Level = f.level
	}
	// The preview owns the terminal.
	if cfg.Preview.Enabled && cfg.Log.Output != "file" {
		cfg.Log.Output = "file"
	}

	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := []app.Option{app.WithLogger(log)}
	if _, err := os.Stat(f.config); err == nil {
		opts = append(opts, app.WithConfigPath(f.config))
	}
	application, err := app.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return application.Run(ctx)
}

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List the event bus channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME\tSLOT\tHOOK")
			for _, ch := range event.Channels() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.Kind, ch.Name, ch, ch.HookName())
			}
			return w.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "flowpanel %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}
