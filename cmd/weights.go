package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/persona-cli/internal/allocator"
	"github.com/sells-group/persona-cli/internal/model"
)

var (
	weightsTrace bool
	weightsYAML  bool
)

var weightsCmd = &cobra.Command{
	Use:   "weights [op ...]",
	Short: "Explore source weight allocations",
	Long: `Applies allocation operations in order, starting from the configured defaults.

Operations:
  set:<source>=<n>      set a weight directly (no rebalancing)
  slide:<source>=<n>    move a slider; later sources absorb the change
  disable:<source>      disable a source and rescale the rest
  enable:<source>       enable a source at a 10% share
  normalize             rescale enabled sources to sum to 100
  reset                 restore 40/15/15/30

Sources: ai_generation (ai), web_extraction (web), file_upload (files), questionnaire.`,
	Example: "  persona-cli weights disable:ai slide:web=40\n  persona-cli weights set:files=80 normalize --yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := allocator.FromSources(cfg.SourceDefaults())
		if err != nil {
			return err
		}
		for _, op := range args {
			if err := applyWeightOp(a, op); err != nil {
				return eris.Wrapf(err, "weights: %s", op)
			}
			if weightsTrace {
				fmt.Fprintf(os.Stdout, "%s\n  %s\n", op, a)
			}
		}
		if weightsYAML {
			return yaml.NewEncoder(os.Stdout).Encode(map[string][]model.Source{"sources": a.Sources()})
		}
		formatAllocation(os.Stdout, a)
		return nil
	},
}

func init() {
	weightsCmd.Flags().BoolVar(&weightsTrace, "trace", false, "print the allocation after every operation")
	weightsCmd.Flags().BoolVar(&weightsYAML, "yaml", false, "print the result as a request sources block")
	rootCmd.AddCommand(weightsCmd)
}

var sourceAliases = map[string]model.SourceKey{
	"ai":    model.SourceAIGeneration,
	"web":   model.SourceWebExtraction,
	"files": model.SourceFileUpload,
	"file":  model.SourceFileUpload,
}

func parseSourceKey(s string) (model.SourceKey, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if k, ok := sourceAliases[s]; ok {
		return k, nil
	}
	if k := model.SourceKey(s); k.Valid() {
		return k, nil
	}
	return "", &model.ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", s)}
}

// applyWeightOp runs one "op[:source[=value]]" operation against a.
func applyWeightOp(a *allocator.Allocator, op string) error {
	name, arg, _ := strings.Cut(op, ":")
	switch name {
	case "normalize":
		a.Normalize()
		return nil
	case "reset":
		a.Reset()
		return nil
	case "enable", "disable":
		key, err := parseSourceKey(arg)
		if err != nil {
			return err
		}
		if name == "enable" {
			return a.ToggleEnable(key)
		}
		return a.ToggleDisable(key)
	case "set", "slide":
		src, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return &model.ValidationError{Field: "op", Reason: name + " needs <source>=<value>"}
		}
		key, err := parseSourceKey(src)
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return &model.ValidationError{Field: string(key), Reason: "weight must be a number"}
		}
		if name == "set" {
			return a.SetWeightDirect(key, v)
		}
		return a.SetWeightViaSlider(key, v)
	}
	return &model.ValidationError{Field: "op", Reason: fmt.Sprintf("unknown operation %q", name)}
}

func formatAllocation(out io.Writer, a *allocator.Allocator) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tENABLED\tWEIGHT")
	for _, s := range a.Sources() {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%d%%\n", s.Label, s.Enabled, s.Weight)
	}
	status := "ok"
	if !a.Valid() {
		status = "needs normalize"
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t\t%d%% (%s)\n", a.Total(), status)
	_ = w.Flush()
}
