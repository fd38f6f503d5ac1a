//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/pipeline"
)

func TestProgressPrinter(t *testing.T) {
	events := []pipeline.Event{
		{Log: "allocation repaired"},
		{Stage: model.StageInitialize, Status: model.StageRunning},
		{Stage: model.StageInitialize, Log: "subject: Ada Lovelace"},
		{Stage: model.StageInitialize, Status: model.StageDone},
		{Stage: model.StageSourceDiscovery, Status: model.StageError},
	}

	t.Run("quiet", func(t *testing.T) {
		var buf bytes.Buffer
		p := newProgressPrinter(&buf, false)
		for _, ev := range events {
			p.Observe(ev)
		}
		out := buf.String()
		assert.Contains(t, out, "allocation repaired")
		assert.Contains(t, out, "[01/17] "+model.StageInitialize.Label())
		assert.Contains(t, out, "[04/17]")
		assert.NotContains(t, out, "subject: Ada Lovelace")
	})

	t.Run("verbose", func(t *testing.T) {
		var buf bytes.Buffer
		p := newProgressPrinter(&buf, true)
		for _, ev := range events {
			p.Observe(ev)
		}
		assert.Contains(t, buf.String(), "subject: Ada Lovelace")
	})
}
