package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/pipeline"
)

var (
	runSubject     string
	runAliases     string
	runLanguages   string
	runTimeWindow  string
	runAnswers     string
	runFiles       []string
	runRequestFile string
	runLive        bool
	runVerbose     bool
	runQuiet       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a persona for a single subject",
	Example: `  persona-cli run --subject "Ada Lovelace" --aliases "Ada King; Countess of Lovelace"
  persona-cli run --request run.yaml --live`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("live") {
			cfg.Pipeline.LiveMode = runLive
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		req, err := buildRunRequest()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var observers []pipeline.Observer
		if !runQuiet {
			_, _ = fmt.Fprintln(os.Stderr, titleStyle.Render("Building persona: "+req.Subject))
			observers = append(observers, newProgressPrinter(os.Stderr, runVerbose))
		}
		orch := newOrchestrator(st, observers...)

		exec, err := orch.Prepare(withDefaults(req))
		if err != nil {
			return err
		}
		rec, err := exec.Run(ctx)
		if err != nil {
			return eris.Wrapf(err, "run %s", rec.ID)
		}

		formatRunSummary(os.Stdout, rec)
		if failure := exec.Failure(); failure != nil {
			return eris.Wrapf(failure, "run %s halted", rec.ID)
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runSubject, "subject", "", "person or organisation to profile")
	f.StringVar(&runAliases, "aliases", "", `alternative names separated by ";"`)
	f.StringVar(&runLanguages, "languages", "", `language tags separated by "," (default en)`)
	f.StringVar(&runTimeWindow, "time-window", "", `free-form time window, e.g. "last 5 years"`)
	f.StringVar(&runAnswers, "answers", "", "questionnaire answers, e.g. risk_tolerance=70,team_orientation=40")
	f.StringSliceVar(&runFiles, "file", nil, "text document to use as uploaded evidence (repeatable)")
	f.StringVar(&runRequestFile, "request", "", "YAML request file; flags override its fields")
	f.BoolVar(&runLive, "live", false, "use live discovery and fetch collaborators")
	f.BoolVarP(&runVerbose, "verbose", "v", false, "print every stage log line")
	f.BoolVarP(&runQuiet, "quiet", "q", false, "suppress progress output")
	rootCmd.AddCommand(runCmd)
}

// buildRunRequest merges the request file, if any, with the command flags.
func buildRunRequest() (pipeline.Request, error) {
	var req pipeline.Request
	if runRequestFile != "" {
		data, err := os.ReadFile(runRequestFile)
		if err != nil {
			return req, eris.Wrap(err, "read request file")
		}
		reqs, err := pipeline.DecodeRequests(data)
		if err != nil {
			return req, err
		}
		if len(reqs) != 1 {
			return req, eris.Errorf("request file holds %d requests; use batch for more than one", len(reqs))
		}
		req = reqs[0]
	}

	if runSubject != "" {
		req.Subject = runSubject
	}
	if runAliases != "" {
		req.Aliases = pipeline.ParseAliases(runAliases)
	}
	if runLanguages != "" {
		req.Languages = pipeline.ParseLanguages(runLanguages)
	}
	if runTimeWindow != "" {
		req.TimeWindow = runTimeWindow
	}
	if runAnswers != "" {
		answers, err := parseAnswers(runAnswers)
		if err != nil {
			return req, err
		}
		req.QuestionnaireAnswers = answers
	}
	uploads, err := readUploads(runFiles)
	if err != nil {
		return req, err
	}
	req.Uploads = append(req.Uploads, uploads...)
	return req, nil
}

// parseAnswers reads "key=score" pairs separated by commas.
func parseAnswers(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, &model.ValidationError{Field: "answers", Reason: fmt.Sprintf("%q is not key=score", pair)}
		}
		score, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil, &model.ValidationError{Field: "answers", Reason: fmt.Sprintf("score for %q is not a number", key)}
		}
		out[strings.TrimSpace(key)] = score
	}
	return out, nil
}

func readUploads(paths []string) ([]pipeline.Upload, error) {
	out := make([]pipeline.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "read upload %s", p)
		}
		out = append(out, pipeline.Upload{Name: filepath.Base(p), Content: string(data)})
	}
	return out, nil
}

// formatRunSummary writes the persona card and headline stats for rec.
func formatRunSummary(w io.Writer, rec model.RunRecord) {
	_, _ = fmt.Fprintf(w, "Run:      %s\n", rec.ID)
	_, _ = fmt.Fprintf(w, "Subject:  %s\n", rec.Subject)
	_, _ = fmt.Fprintf(w, "Status:   %s\n", rec.Status())
	if key, failed := rec.Failed(); failed {
		st := rec.Stage(key)
		_, _ = fmt.Fprintf(w, "Failed:   %s\n", key.Label())
		if n := len(st.Logs); n > 0 {
			_, _ = fmt.Fprintf(w, "          %s\n", st.Logs[n-1])
		}
		return
	}
	p := rec.Persona
	if p == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Confidence: %.2f (%s)\n\n", p.Confidence, p.ConfidenceBand)
	_, _ = fmt.Fprintf(w, "Role:        %s\n", p.Role)
	_, _ = fmt.Fprintf(w, "Expertise:   %s\n", p.Expertise)
	_, _ = fmt.Fprintf(w, "Mindset:     %s\n", p.Mindset)
	_, _ = fmt.Fprintf(w, "Personality: %s\n", p.Personality)
	_, _ = fmt.Fprintf(w, "Description: %s\n", p.Description)
	if s := rec.Stats; s != nil {
		_, _ = fmt.Fprintf(w, "\nEvidence: %d quotes from %d sources; %d of %d documents kept; agreement %.2f\n",
			len(p.Quotes), s.EvidenceStrength.UniqueSources, s.Coverage.Kept, s.Coverage.Discovered, s.AgreementConflicts.AgreementIndex)
	}
}
