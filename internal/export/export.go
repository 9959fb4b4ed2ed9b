// Package export writes the selected and filtered users to CSV or XLSX.
package export

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/query"
	"github.com/sells-group/user-dashboard/internal/snapshot"
)

// ErrExportEmpty is returned when no user is both selected and filtered.
// Nothing is written in that case.
var ErrExportEmpty = eris.New("export: no rows to export")

// EmptyNotice is shown instead of a file when ErrExportEmpty occurs.
const EmptyNotice = "No users are both selected and filtered; nothing to export."

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a request value to a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", eris.Errorf("export: unknown format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns base stamped with the date of now and the extension of f.
func Filename(base string, f Format, now time.Time) string {
	if base == "" {
		base = "users_export"
	}
	return base + "_" + now.Format(model.DateLayout) + "." + string(f)
}

// utf8BOM lets spreadsheet applications detect UTF-8.
const utf8BOM = "\ufeff"

// Intersect returns the ids present in both lists, in filtered order.
func Intersect(selected, filtered []string) []string {
	sel := make(map[string]bool, len(selected))
	for _, id := range selected {
		sel[id] = true
	}
	var out []string
	for _, id := range filtered {
		if sel[id] {
			out = append(out, id)
			delete(sel, id)
		}
	}
	return out
}

// Rows aggregates the users that are both selected and filtered under the
// row predicates of fs, using the same reduction as the page view.
func Rows(t *snapshot.FactTable, fs query.FilterState, selected, filtered []string) []model.UserAggregate {
	return query.Aggregate(t, fs, Intersect(selected, filtered))
}

// Write renders aggs in format f. It returns ErrExportEmpty without
// writing anything when aggs is empty.
func Write(w io.Writer, f Format, aggs []model.UserAggregate) error {
	if len(aggs) == 0 {
		return ErrExportEmpty
	}
	var err error
	switch f {
	case FormatXLSX:
		err = WriteXLSX(w, aggs)
	default:
		err = WriteCSV(w, aggs)
	}
	if err != nil {
		return err
	}
	zap.L().Info("export: written", zap.String("format", string(f)), zap.Int("users", len(aggs)))
	return nil
}

// WriteCSV writes a BOM, the column labels, and one formatted row per user.
func WriteCSV(w io.Writer, aggs []model.UserAggregate) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return eris.Wrap(err, "export: write bom")
	}
	cols := model.ExportColumns()
	cw := csv.NewWriter(w)

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Label
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	f := query.NewFormatter(query.StyleExport)
	record := make([]string, len(cols))
	for i := range aggs {
		for j, c := range cols {
			record[j] = f.Cell(&aggs[i], c)
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "export: write user %s", aggs[i].UserID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// Number formats applied to XLSX cells.
const (
	xlsxCurrency = `"$"#,##0.00`
	xlsxPercent  = `0.00"%"`
	xlsxDecimal  = `0.00`
)

// WriteXLSX writes a single-sheet workbook with the same columns and
// labels as the CSV. Numbers are stored as numeric cells.
func WriteXLSX(w io.Writer, aggs []model.UserAggregate) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Users")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	cols := model.ExportColumns()
	header := sheet.AddRow()
	for _, c := range cols {
		header.AddCell().SetString(c.Label)
	}

	for i := range aggs {
		row := sheet.AddRow()
		for _, c := range cols {
			setCell(row.AddCell(), c, aggs[i].Value(c.Name))
		}
	}

	if err := file.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func setCell(cell *xlsx.Cell, c model.Column, v model.Value) {
	if v.Null {
		cell.SetString("")
		return
	}
	switch v.Kind {
	case model.KindInt:
		cell.SetInt64(int64(v.Num))
	case model.KindFloat:
		switch c.Name {
		case model.ColTotalSalesRevenue:
			cell.SetFloatWithFormat(v.Num, xlsxCurrency)
		case model.ColExclusivityRate, model.ColAcceptanceRate:
			cell.SetFloatWithFormat(v.Num, xlsxPercent)
		default:
			cell.SetFloatWithFormat(v.Num, xlsxDecimal)
		}
	case model.KindDate:
		cell.SetString(v.Time.Format(model.DateLayout))
	default:
		cell.SetString(v.Str)
	}
}
