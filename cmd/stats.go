package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/areal/internal/areal"
)

var (
	statsDataset   string
	statsBoundary  string
	statsFragments bool
)

type statsOutput struct {
	Dataset   string           `json:"dataset"`
	Stats     areal.Result     `json:"stats"`
	Fragments []areal.Fragment `json:"fragments,omitempty"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Apportion a dataset's statistics over a GeoJSON boundary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		q, err := readQuery(statsBoundary, cmd.InOrStdin())
		if err != nil {
			return err
		}

		env, err := initData(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		env.Specs, err = selectSpecs(env.Specs, statsDataset)
		if err != nil {
			return err
		}
		reg, err := newRegistry(ctx, cfg, env, false)
		if err != nil {
			return err
		}

		result, fragments, err := reg.AreaStatsDetail(ctx, q, statsDataset)
		if err != nil {
			return err
		}

		out := statsOutput{Dataset: statsDataset, Stats: result}
		if statsFragments {
			out.Fragments = fragments
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// readQuery parses a GeoJSON boundary from path, or from stdin when path is "-".
func readQuery(path string, stdin io.Reader) (*areal.Query, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read boundary %s", path)
	}
	return areal.ParseQuery(data)
}

func init() {
	statsCmd.Flags().StringVar(&statsDataset, "dataset", "simple_age_bins", "dataset id")
	statsCmd.Flags().StringVar(&statsBoundary, "boundary", "", "GeoJSON boundary file (- for stdin)")
	statsCmd.Flags().BoolVar(&statsFragments, "fragments", false, "include per-unit intersection fragments")
	_ = statsCmd.MarkFlagRequired("boundary")
	rootCmd.AddCommand(statsCmd)
}
