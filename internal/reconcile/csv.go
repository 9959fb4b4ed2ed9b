package reconcile

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/user-dashboard/internal/model"
)

// MergedHeader returns the column names of the merged CSV artifact: the
// two key columns followed by every merged column in table order.
func MergedHeader() []string {
	header := []string{model.ColUserID, model.ColActivityWeek}
	for _, col := range model.Columns {
		if col.Merged != "" {
			header = append(header, col.Merged)
		}
	}
	return header
}

// WriteCSV writes the reconciled rows using the merged (prefixed) column
// names. Null values are written as empty cells.
func WriteCSV(w io.Writer, rows []model.FactRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MergedHeader()); err != nil {
		return eris.Wrap(err, "reconcile: write header")
	}

	record := make([]string, 0, len(model.Columns)+1)
	for i := range rows {
		r := &rows[i]
		record = append(record[:0], r.UserID, r.Week())
		for _, col := range model.Columns {
			if col.Merged == "" {
				continue
			}
			v, ok := r.Profile.Value(col.Name)
			if !ok {
				v, _ = r.Metrics.Value(col.Name)
			}
			record = append(record, formatValue(v))
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "reconcile: write row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "reconcile: flush csv")
}

func formatValue(v model.Value) string {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case model.KindDate:
		return v.Time.Format(model.DateLayout)
	case model.KindInt:
		return strconv.FormatInt(int64(v.Num), 10)
	case model.KindFloat:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}
