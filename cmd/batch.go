package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/pipeline"
)

var (
	batchFile        string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Build personas for every request in a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchConcurrency > 0 {
			cfg.Batch.MaxConcurrentRuns = batchConcurrency
		}
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		data, err := os.ReadFile(batchFile)
		if err != nil {
			return eris.Wrap(err, "read batch file")
		}
		reqs, err := pipeline.DecodeRequests(data)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		orch := newOrchestrator(st)
		results := processBatch(ctx, reqs, cfg.Batch.MaxConcurrentRuns, func(ctx context.Context, req pipeline.Request) (model.RunRecord, error) {
			exec, err := orch.Prepare(withDefaults(req))
			if err != nil {
				return model.RunRecord{}, err
			}
			rec, err := exec.Run(ctx)
			if err != nil {
				return rec, err
			}
			return rec, exec.Failure()
		})

		formatBatchResults(os.Stdout, results)
		for _, r := range results {
			if r.Err != nil {
				return eris.New("batch: one or more runs failed")
			}
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "YAML file with a list of run requests")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent runs (default from config)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// runFunc executes one request.
type runFunc func(ctx context.Context, req pipeline.Request) (model.RunRecord, error)

// batchResult is the outcome of one request, in input order.
type batchResult struct {
	Subject string
	Record  model.RunRecord
	Err     error
}

// processBatch runs requests concurrently, at most concurrency at a time.
// A failed run never aborts the others.
func processBatch(ctx context.Context, reqs []pipeline.Request, concurrency int, run runFunc) []batchResult {
	results := make([]batchResult, len(reqs))
	if len(reqs) == 0 {
		zap.L().Info("batch: no requests")
		return results
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("requests", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64
	for i, req := range reqs {
		g.Go(func() error {
			log := zap.L().With(zap.String("subject", req.Subject))
			rec, err := run(gctx, req)
			results[i] = batchResult{Subject: req.Subject, Record: rec, Err: err}
			if err != nil {
				failed.Add(1)
				log.Error("batch: run failed", zap.String("run_id", rec.ID), zap.Error(err))
				return nil
			}
			succeeded.Add(1)
			log.Info("batch: run complete", zap.String("run_id", rec.ID))
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results
}

// formatBatchResults writes one row per request.
func formatBatchResults(out io.Writer, results []batchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SUBJECT\tRUN\tSTATUS\tCONFIDENCE\tERROR")
	for _, r := range results {
		conf := "-"
		if p := r.Record.Persona; p != nil {
			conf = fmt.Sprintf("%.2f (%s)", p.Confidence, p.ConfidenceBand)
		}
		status := string(r.Record.Status())
		if r.Record.ID == "" {
			status = "rejected"
		}
		errMsg := ""
		if r.Err != nil {
			errMsg = truncate(r.Err.Error(), 60)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", truncate(r.Subject, 30), r.Record.ID, status, conf, errMsg)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
