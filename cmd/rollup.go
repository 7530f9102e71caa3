package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rooftop-cli/internal/config"
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Print the regional rollup of the stored results",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeReport); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		regions, err := st.RollupByRegion(ctx)
		if err != nil {
			return eris.Wrap(err, "rollup")
		}

		switch output, _ := cmd.Flags().GetString("output"); output {
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(regions); err != nil {
				return eris.Wrap(err, "rollup: encode yaml")
			}
			return enc.Close()
		case "table":
			formatRegions(os.Stdout, regions)
			return nil
		default:
			return eris.Errorf("rollup: unknown output %q (want table or yaml)", output)
		}
	},
}

func init() {
	rollupCmd.Flags().StringP("output", "o", "table", "output format: table or yaml")
	rootCmd.AddCommand(rollupCmd)
}
