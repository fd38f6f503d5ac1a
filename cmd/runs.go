package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
	Long:  "Commands for listing and viewing persona runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("inspect"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		subject, _ := cmd.Flags().GetString("subject")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.List(ctx, store.RunFilter{Subject: subject, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full record of a run",
	Args:  cobra.ExactArgs(1),
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

		rec, err := st.Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeRecord(os.Stdout, rec)
	},
}

// -- runs latest --

var runsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recent run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("inspect"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetLatest(ctx)
		if err != nil {
			return eris.Wrap(err, "runs latest")
		}
		if rec == nil {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		return writeRecord(os.Stdout, rec)
	},
}

func init() {
	runsListCmd.Flags().String("subject", "", "filter by exact subject")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsLatestCmd)
	rootCmd.AddCommand(runsCmd)
}

func writeRecord(w io.Writer, rec *model.RunRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSUBJECT\tSTATUS\tPROGRESS\tCONFIDENCE\tREVIEW\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t--------\t----------\t------\t-------")

	for _, r := range runs {
		done := 0
		for _, s := range r.Stages {
			if s.Status == model.StageDone {
				done++
			}
		}
		conf := "-"
		if r.Persona != nil {
			conf = fmt.Sprintf("%.2f %s", r.Persona.Confidence, r.Persona.ConfidenceBand)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			r.ID,
			truncate(r.Subject, 30),
			r.Status(),
			done, len(r.Stages),
			conf,
			reviewState(r),
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// reviewState is the most recent approve or request-changes decision.
func reviewState(r model.RunRecord) string {
	for i := len(r.AuditLog) - 1; i >= 0; i-- {
		switch r.AuditLog[i].Action {
		case model.ActionApprove:
			return "approved"
		case model.ActionRequestChanges:
			return "changes requested"
		}
	}
	return "-"
}
