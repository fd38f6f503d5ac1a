//go:build !integration

package main

import (
	"testing"

	"github.com/sells-group/persona-cli/internal/config"
)

// useTestConfig installs a config with the default source weights for the
// duration of the test.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Store:   config.StoreConfig{Driver: "memory"},
		Sources: config.SourcesConfig{AIGeneration: 40, WebExtraction: 15, FileUpload: 15, Questionnaire: 30},
		Fusion:  config.FusionConfig{Global: 0.7, Policy: "placeholder"},
		Export:  config.ExportConfig{Dir: t.TempDir()},
	}
	t.Cleanup(func() { cfg = prev })
	return cfg
}
