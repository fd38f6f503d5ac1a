// Package export renders a run's verification pack: quotes as CSV, stats and
// trace as JSON, and an evidence workbook.
package export

import (
	"bytes"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/persona-cli/internal/model"
)

// quoteRow fixes the CSV column order: attribute,quote,url,title,date,chunk_id,weight.
type quoteRow struct {
	Attribute string  `csv:"attribute"`
	Quote     string  `csv:"quote"`
	URL       string  `csv:"url"`
	Title     string  `csv:"title"`
	Date      string  `csv:"date"`
	ChunkID   string  `csv:"chunk_id"`
	Weight    float64 `csv:"weight"`
}

// QuotesHeader is the first line of every quotes CSV.
const QuotesHeader = "attribute,quote,url,title,date,chunk_id,weight"

// EncodeQuotesCSV renders quotes with a header row. Fields containing a
// comma, quote, or newline are quoted with inner quotes doubled.
func EncodeQuotesCSV(quotes []model.QuoteEvidence) ([]byte, error) {
	if len(quotes) == 0 {
		return []byte(QuotesHeader + "\n"), nil
	}
	rows := make([]quoteRow, len(quotes))
	for i, q := range quotes {
		rows[i] = quoteRow{
			Attribute: string(q.Attribute),
			Quote:     q.Quote,
			URL:       q.URL,
			Title:     q.Title,
			Date:      q.Date,
			ChunkID:   q.ChunkID,
			Weight:    q.Weight,
		}
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode quotes csv")
	}
	return data, nil
}

// DecodeQuotesCSV parses a quotes CSV produced by EncodeQuotesCSV. CSV readers
// turn "\r\n" inside quoted fields into "\n", so a quote only round-trips
// exactly when it uses "\n" line endings; the Normalization stage ensures that
// for every quote a run produces.
func DecodeQuotesCSV(data []byte) ([]model.QuoteEvidence, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, eris.New("export: empty quotes csv")
	}
	var rows []quoteRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "export: decode quotes csv")
	}
	out := make([]model.QuoteEvidence, len(rows))
	for i, r := range rows {
		out[i] = model.QuoteEvidence{
			Attribute: model.AttributeKey(r.Attribute),
			Quote:     r.Quote,
			URL:       r.URL,
			Title:     r.Title,
			Date:      r.Date,
			ChunkID:   r.ChunkID,
			Weight:    r.Weight,
		}
	}
	return out, nil
}
