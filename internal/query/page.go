package query

import (
	"github.com/sells-group/user-dashboard/internal/model"
)

// NoResultsMessage is the text of the sentinel row shown for an empty result.
const NoResultsMessage = "No results found"

// Header is one rendered column.
type Header struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Row is one rendered user. Cells follow the header order.
type Row struct {
	UserID   string   `json:"user_id"`
	Selected bool     `json:"selected"`
	Cells    []string `json:"cells"`
}

// PageView is the rendered current page.
type PageView struct {
	Headers    []Header `json:"headers"`
	Rows       []Row    `json:"rows"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
	Total      int      `json:"total"`
	NoResults  bool     `json:"no_results"`
}

// Render builds the page view for aggs, which must already be the current
// page in display order. selected reports the checkbox state per user.
// With no aggregates the view holds a single sentinel row.
func Render(aggs []model.UserAggregate, selected func(string) bool, page, pageSize, totalPages, total int) *PageView {
	cols := model.ExportColumns()
	v := &PageView{
		Headers:    make([]Header, len(cols)),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Total:      total,
	}
	for i, c := range cols {
		v.Headers[i] = Header{Name: c.Name, Label: c.Label}
	}

	if len(aggs) == 0 {
		cells := make([]string, len(cols))
		cells[0] = NoResultsMessage
		v.Rows = []Row{{Cells: cells}}
		v.NoResults = true
		return v
	}

	f := NewFormatter(StyleDisplay)
	v.Rows = make([]Row, len(aggs))
	for i := range aggs {
		a := &aggs[i]
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = f.Cell(a, c)
		}
		v.Rows[i] = Row{UserID: a.UserID, Selected: selected != nil && selected(a.UserID), Cells: cells}
	}
	return v
}
