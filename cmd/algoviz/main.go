package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/algoviz/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "algoviz",
	Short: "Step-by-step algorithm visualizer",
	Long:  "algoviz animates sorting, searching and pathfinding algorithms in the terminal and serves them over HTTP.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "", false, "Only log errors")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("algoviz version %s\n", version))
	cli.Version = version

	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewStatsCmd())
	rootCmd.AddCommand(cli.NewAlgorithmsCmd())
}
