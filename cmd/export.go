package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/persona-cli/internal/export"
	"github.com/sells-group/persona-cli/internal/model"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export [run-id]",
	Short: "Write the verification pack for a completed run",
	Long:  "Writes the quotes CSV, stats JSON, stage trace JSON and evidence workbook for a run. Without a run id the latest run is exported.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("inspect"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var rec *model.RunRecord
		if len(args) == 1 {
			rec, err = st.Get(ctx, args[0])
		} else {
			rec, err = st.GetLatest(ctx)
			if err == nil && rec == nil {
				err = eris.New("no runs to export")
			}
		}
		if err != nil {
			return eris.Wrap(err, "export")
		}

		dir := exportDir
		if dir == "" {
			dir = cfg.Export.Dir
		}
		b, err := export.WriteBundle(dir, rec)
		if err != nil {
			return err
		}
		for _, p := range []string{b.QuotesCSV, b.StatsJSON, b.TraceJSON, b.Workbook} {
			fmt.Fprintln(os.Stdout, p)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
