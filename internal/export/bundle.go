package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/persona-cli/internal/model"
)

// Bundle lists the files written for one run.
type Bundle struct {
	QuotesCSV string `json:"quotes_csv"`
	StatsJSON string `json:"stats_json"`
	TraceJSON string `json:"trace_json"`
	Workbook  string `json:"workbook"`
}

// FileNames returns the verification pack file names for a run id.
func FileNames(runID string) Bundle {
	return Bundle{
		QuotesCSV: "verification_" + runID + ".csv",
		StatsJSON: "stats_" + runID + ".json",
		TraceJSON: "trace_" + runID + ".json",
		Workbook:  "evidence_" + runID + ".xlsx",
	}
}

// WriteBundle writes the verification pack for a completed run into dir.
func WriteBundle(dir string, rec *model.RunRecord) (Bundle, error) {
	if rec == nil {
		return Bundle{}, eris.New("export: nil run record")
	}
	if !rec.Complete() || rec.Persona == nil || rec.Stats == nil {
		return Bundle{}, &model.ValidationError{Field: "run", Reason: "run " + rec.ID + " has not completed"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Bundle{}, eris.Wrapf(err, "export: create dir %s", dir)
	}

	names := FileNames(rec.ID)
	out := Bundle{
		QuotesCSV: filepath.Join(dir, names.QuotesCSV),
		StatsJSON: filepath.Join(dir, names.StatsJSON),
		TraceJSON: filepath.Join(dir, names.TraceJSON),
		Workbook:  filepath.Join(dir, names.Workbook),
	}

	quotes, err := EncodeQuotesCSV(rec.Persona.Quotes)
	if err != nil {
		return Bundle{}, err
	}
	stats, err := EncodeStatsJSON(rec.Stats)
	if err != nil {
		return Bundle{}, err
	}
	trace, err := EncodeTraceJSON(rec.Stages)
	if err != nil {
		return Bundle{}, err
	}

	for path, data := range map[string][]byte{out.QuotesCSV: quotes, out.StatsJSON: stats, out.TraceJSON: trace} {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return Bundle{}, eris.Wrapf(err, "export: write %s", path)
		}
	}

	wb, err := EncodeWorkbook(rec)
	if err != nil {
		return Bundle{}, err
	}
	if err := wb.Save(out.Workbook); err != nil {
		return Bundle{}, eris.Wrapf(err, "export: save %s", out.Workbook)
	}

	zap.L().Info("export: bundle written",
		zap.String("run_id", rec.ID),
		zap.String("dir", dir),
		zap.Int("quotes", len(rec.Persona.Quotes)),
	)
	return out, nil
}
