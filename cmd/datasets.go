package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/areal/internal/registry"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Build every configured dataset and show its status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initData(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		reg, err := newRegistry(ctx, cfg, env, true)
		if err != nil {
			return err
		}

		formatStatuses(cmd.OutOrStdout(), reg.List())
		return nil
	},
}

// formatStatuses writes a tabular representation of dataset statuses to out.
func formatStatuses(out io.Writer, statuses []registry.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATE\tUNITS\tFIELDS\tBUILD\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-----\t-----\t------\t-----\t-----")

	for _, s := range statuses {
		build := "-"
		if s.BuildDuration != "" {
			build = s.BuildDuration
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID,
			s.State,
			s.Units,
			truncate(strings.Join(s.Fields, ","), 40),
			build,
			truncate(s.Error, 60),
		)
	}
	_ = w.Flush()
}

// truncate shortens s to n runes, appending "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}
