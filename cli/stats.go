package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/algoviz/activity"
	"github.com/petal-labs/algoviz/config"
)

// NewStatsCmd creates the "stats" subcommand.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Show a user's run statistics from the server",
		Args:  cobra.ExactArgs(1),
		RunE:  runStats,
	}

	cmd.Flags().String("server", "", "Server URL (default: client.server_url from config)")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().String("config", "", "Path to algoviz.yaml")

	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	file, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitValidation, "unknown format %q (use text or json)", format)
	}

	client := activityClient(cmd, file, commandLogger(cmd))
	if client == nil {
		return exitError(exitValidation, "no server configured (use --server or %s)", config.EnvServerURL)
	}

	stats, err := client.Stats(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, activity.ErrUserRequired) {
			return exitError(exitValidation, "%v", err)
		}
		return exitError(exitServer, "fetching stats: %v", err)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	writeStats(cmd.OutOrStdout(), args[0], stats)
	return nil
}

func writeStats(out io.Writer, userID string, stats activity.Stats) {
	fmt.Fprintf(out, "User:      %s\n", userID)
	fmt.Fprintf(out, "Total:     %d\n", stats.Total)
	fmt.Fprintf(out, "Favorite:  %s\n", stats.Favorite)
	if len(stats.History) == 0 {
		return
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCATEGORY\tALGORITHM")
	for _, h := range stats.History {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Time.Local().Format(time.DateTime), h.Category, h.Algorithm)
	}
	_ = tw.Flush()
}
