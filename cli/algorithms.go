package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/algoviz/core"
)

// NewAlgorithmsCmd creates the "algorithms" subcommand.
func NewAlgorithmsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "algorithms",
		Aliases: []string{"list"},
		Short:   "List the available algorithms",
		Args:    cobra.NoArgs,
		RunE:    runAlgorithms,
	}

	cmd.Flags().String("category", "", "Only list one category: sorting | searching | pathfinding")
	cmd.Flags().Bool("pseudocode", false, "Print each pseudocode listing")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

type algorithmJSON struct {
	Slug       string   `json:"slug"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Pseudocode []string `json:"pseudocode,omitempty"`
}

func runAlgorithms(cmd *cobra.Command, _ []string) error {
	algs := core.Algorithms()
	if name, _ := cmd.Flags().GetString("category"); name != "" {
		cat, ok := core.ParseCategory(name)
		if !ok {
			return exitError(exitValidation, "unknown category %q", name)
		}
		algs = core.ByCategory(cat)
	}
	withCode, _ := cmd.Flags().GetBool("pseudocode")
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		list := make([]algorithmJSON, 0, len(algs))
		for _, a := range algs {
			item := algorithmJSON{Slug: a.Slug(), Name: a.String(), Category: a.Category().String()}
			if withCode {
				item.Pseudocode = a.Pseudocode()
			}
			list = append(list, item)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)

	case "text":
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SLUG\tNAME\tCATEGORY")
		for _, a := range algs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Slug(), a, a.Category())
			if withCode {
				for i, line := range a.Pseudocode() {
					fmt.Fprintf(tw, "\t  %2d  %s\t\n", i, line)
				}
			}
		}
		return tw.Flush()
	}
	return exitError(exitValidation, "unknown format %q (use text or json)", format)
}
