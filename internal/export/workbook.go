package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/persona-cli/internal/model"
)

// Workbook sheet names.
const (
	SheetPersona = "Persona"
	SheetQuotes  = "Quotes"
	SheetTrace   = "Trace"
)

// EncodeWorkbook builds an evidence workbook with persona, quotes, and trace sheets.
func EncodeWorkbook(rec *model.RunRecord) (*xlsx.File, error) {
	if rec == nil {
		return nil, eris.New("export: nil run record")
	}
	f := xlsx.NewFile()

	persona, err := f.AddSheet(SheetPersona)
	if err != nil {
		return nil, eris.Wrap(err, "export: add persona sheet")
	}
	addRow(persona, "field", "value")
	addRow(persona, "subject", rec.Subject)
	addRow(persona, "run_id", rec.ID)
	if p := rec.Persona; p != nil {
		for _, k := range model.AttributeKeys() {
			addRow(persona, string(k), p.Attribute(k))
		}
		addRow(persona, "confidence", strconv.FormatFloat(p.Confidence, 'f', 2, 64))
		addRow(persona, "confidence_band", string(p.ConfidenceBand))
	}

	quotes, err := f.AddSheet(SheetQuotes)
	if err != nil {
		return nil, eris.Wrap(err, "export: add quotes sheet")
	}
	addRow(quotes, strings.Split(QuotesHeader, ",")...)
	if rec.Persona != nil {
		for _, q := range rec.Persona.Quotes {
			addRow(quotes, string(q.Attribute), q.Quote, q.URL, q.Title, q.Date, q.ChunkID, strconv.FormatFloat(q.Weight, 'f', -1, 64))
		}
	}

	trace, err := f.AddSheet(SheetTrace)
	if err != nil {
		return nil, eris.Wrap(err, "export: add trace sheet")
	}
	addRow(trace, "stage", "label", "status", "duration_ms", "logs")
	for _, s := range rec.Stages {
		addRow(trace, string(s.Key), s.Label, string(s.Status), fmt.Sprint(s.Duration().Milliseconds()), strings.Join(s.Logs, "\n"))
	}
	return f, nil
}

// EncodeWorkbookBytes renders the workbook as an .xlsx byte stream.
func EncodeWorkbookBytes(rec *model.RunRecord) ([]byte, error) {
	f, err := EncodeWorkbook(rec)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "export: write workbook")
	}
	return buf.Bytes(), nil
}

// ReadSheet returns every row of the named sheet in an .xlsx file as strings.
func ReadSheet(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[sheetName]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", sheetName)
	}
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
