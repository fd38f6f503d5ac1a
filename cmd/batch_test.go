//go:build !integration

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/pipeline"
	"github.com/sells-group/persona-cli/internal/store"
)

func TestProcessBatch_PreservesOrderAndIsolatesFailures(t *testing.T) {
	reqs := []pipeline.Request{{Subject: "A"}, {Subject: "B"}, {Subject: "C"}, {Subject: "D"}}

	var inFlight, peak atomic.Int64
	run := func(ctx context.Context, req pipeline.Request) (model.RunRecord, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		if req.Subject == "B" {
			return model.RunRecord{}, errors.New("boom")
		}
		return model.RunRecord{ID: "run-" + req.Subject, Subject: req.Subject, Stages: model.NewStages()}, nil
	}

	results := processBatch(context.Background(), reqs, 2, run)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, reqs[i].Subject, r.Subject)
	}
	assert.EqualError(t, results[1].Err, "boom")
	assert.Equal(t, "run-D", results[3].Record.ID)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestProcessBatch_Empty(t *testing.T) {
	called := false
	results := processBatch(context.Background(), nil, 4, func(context.Context, pipeline.Request) (model.RunRecord, error) {
		called = true
		return model.RunRecord{}, nil
	})
	assert.Empty(t, results)
	assert.False(t, called)
}

func TestProcessBatch_WithOrchestrator(t *testing.T) {
	useTestConfig(t)
	repo := store.NewMemory()
	orch := pipeline.New(repo)

	var reqs []pipeline.Request
	for i := range 3 {
		reqs = append(reqs, withDefaults(pipeline.Request{Subject: fmt.Sprintf("Subject %d", i)}))
	}
	reqs = append(reqs, pipeline.Request{Subject: " "})

	results := processBatch(context.Background(), reqs, 2, orch.Run)

	for _, r := range results[:3] {
		require.NoError(t, r.Err)
		assert.True(t, r.Record.Complete(), r.Subject)
	}
	var ve *model.ValidationError
	assert.ErrorAs(t, results[3].Err, &ve)

	runs, err := repo.List(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestFormatBatchResults(t *testing.T) {
	done := model.RunRecord{ID: "run-1", Stages: model.NewStages()}
	for i := range done.Stages {
		done.Stages[i].Status = model.StageDone
	}
	done.Persona = &model.PersonaResult{Confidence: 0.55, ConfidenceBand: model.BandMedium}

	var buf bytes.Buffer
	formatBatchResults(&buf, []batchResult{
		{Subject: "Ada Lovelace", Record: done},
		{Subject: "", Err: &model.ValidationError{Field: "subject", Reason: "must not be empty"}},
	})
	out := buf.String()
	assert.Contains(t, out, "SUBJECT")
	assert.Contains(t, out, "0.55 (M)")
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "subject")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ñññ...", truncate("ññññññññ", 6))
}
