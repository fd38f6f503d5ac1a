package export

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/persona-cli/internal/model"
)

// EncodeStatsJSON renders stats with two-space indentation.
func EncodeStatsJSON(stats *model.RunStats) ([]byte, error) {
	if stats == nil {
		return nil, eris.New("export: run has no stats")
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "export: encode stats json")
	}
	return data, nil
}

// EncodeTraceJSON renders the stage trace with two-space indentation.
func EncodeTraceJSON(stages []model.Stage) ([]byte, error) {
	if stages == nil {
		stages = []model.Stage{}
	}
	data, err := json.MarshalIndent(stages, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "export: encode trace json")
	}
	return data, nil
}
