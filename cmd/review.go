package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/review"
)

var (
	reviewComment string
	reviewActor   string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record review decisions on a run",
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <run-id>",
	Short: "Approve a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l *review.Ledger) (*model.RunRecord, error) {
			return l.Approve(cmd.Context(), args[0], reviewComment)
		})
	},
}

var reviewRequestChangesCmd = &cobra.Command{
	Use:   "request-changes <run-id>",
	Short: "Request changes on a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l *review.Ledger) (*model.RunRecord, error) {
			return l.RequestChanges(cmd.Context(), args[0], reviewComment)
		})
	},
}

var reviewCommentCmd = &cobra.Command{
	Use:   "comment <run-id> <text>",
	Short: "Add a comment to a run's audit log",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l *review.Ledger) (*model.RunRecord, error) {
			return l.Comment(cmd.Context(), args[0], model.Actor(reviewActor), args[1])
		})
	},
}

var reviewLogCmd = &cobra.Command{
	Use:   "log <run-id>",
	Short: "Show a run's audit log, newest first",
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
			return eris.Wrap(err, "review log")
		}
		printAuditLog(rec)
		return nil
	},
}

func init() {
	reviewApproveCmd.Flags().StringVarP(&reviewComment, "comment", "m", "", "optional note")
	reviewRequestChangesCmd.Flags().StringVarP(&reviewComment, "comment", "m", "", "what needs to change")
	reviewCommentCmd.Flags().StringVar(&reviewActor, "as", string(model.ActorOwner), "actor writing the comment (owner or reviewer)")

	reviewCmd.AddCommand(reviewApproveCmd, reviewRequestChangesCmd, reviewCommentCmd, reviewLogCmd)
	rootCmd.AddCommand(reviewCmd)
}

func withLedger(cmd *cobra.Command, fn func(*review.Ledger) (*model.RunRecord, error)) error {
	ctx := cmd.Context()
	if err := cfg.Validate("inspect"); err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	rec, err := fn(review.New(st))
	if err != nil {
		return err
	}
	printAuditLog(rec)
	return nil
}

func printAuditLog(rec *model.RunRecord) {
	entries := review.Entries(*rec)
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "No review entries.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s  %-15s", e.At.Format("2006-01-02 15:04:05"), e.Actor, e.Action)
		if e.Comment != "" {
			line += "  " + e.Comment
		}
		fmt.Fprintln(os.Stdout, line)
	}
}
