// Package main provides the cutsim CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/richinex/cutsim/cli"
	"github.com/richinex/cutsim/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "cutsim",
		Short: "CNC material removal simulator",
		Long: `A CLI tool for simulating CNC machining.

Motion programs (G-code and TPL scripts) are interpreted into a tool path,
and the tool path is cut from the stock to produce a surface mesh. Surfaces
are cached beside the project file as STL records keyed by a content hash.

Configuration is read from CUTSIM_* environment variables (and .env).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(toolpathCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(historyCmd())

	// Interrupt drives cooperative cancellation of the running build.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func options() (cli.Options, error) {
	settings, err := config.New()
	if err != nil {
		return cli.Options{}, err
	}
	return cli.Options{
		Settings: settings,
		Verbose:  verbose,
		Logger:   cli.NewLogger(os.Stderr, settings.LogLevel, verbose),
	}, nil
}

func toolpathCmd() *cobra.Command {
	var toolsPath string

	cmd := &cobra.Command{
		Use:   "toolpath <project.json | files...>",
		Short: "Interpret motion programs and summarize the tool path",
		Long: `Interpret motion programs into a tool path.

Pass a project file, or program files in execution order. Files ending in
.tpl run as TPL scripts; everything else is read as G-code. Missing files
are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := options()
			if err != nil {
				return err
			}
			return cli.Toolpath(cmd.Context(), args, toolsPath, opts)
		},
	}

	cmd.Flags().StringVar(&toolsPath, "tools", "", "JSON tool table for bare program files")

	return cmd
}

func simulateCmd() *cobra.Command {
	var sopts cli.SimulateOptions

	cmd := &cobra.Command{
		Use:   "simulate <project.json>",
		Short: "Compute the machined surface of a project",
		Long: `Build the project's tool path and resolve its surface.

A valid cache record beside the project file is used when present;
otherwise the surface is rendered. With CUTSIM_CACHE_WRITE=true the
computed surface is written back as a cache record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := options()
			if err != nil {
				return err
			}
			return cli.Simulate(cmd.Context(), args[0], sopts, opts)
		},
	}

	cmd.Flags().Float64Var(&sopts.Time, "time", 0, "Simulate up to this many seconds of machining (0 for all)")
	cmd.Flags().BoolVar(&sopts.Reduce, "reduce", false, "Simplify the surface after computing it")
	cmd.Flags().StringVarP(&sopts.Out, "out", "o", "", "Write the surface as binary STL")

	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent builds and surface resolutions",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := options()
			if err != nil {
				return err
			}
			return cli.History(cmd.Context(), limit, opts)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of entries to show")

	return cmd
}
