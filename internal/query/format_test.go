package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/user-dashboard/internal/model"
)

func col(t *testing.T, name string) model.Column {
	t.Helper()
	c, ok := model.LookupColumn(name)
	require.True(t, ok)
	return c
}

func TestFormatter_Display(t *testing.T) {
	f := NewFormatter(StyleDisplay)
	a := model.UserAggregate{
		UserID: "1",
		Profile: model.Profile{
			RegistrationDate: ptr(day("2020-05-01")),
			ExclusivityRate:  ptr(12.346),
			ProfileURL:       "example.com/u/ada",
		},
		Metrics: model.Metrics{TotalUploads: 12345, TotalSalesRevenue: 1234.5},
	}

	assert.Equal(t, "12,345", f.Cell(&a, col(t, model.ColTotalUploads)))
	assert.Equal(t, "$1,234.50", f.Cell(&a, col(t, model.ColTotalSalesRevenue)))
	assert.Equal(t, "12.35%", f.Cell(&a, col(t, model.ColExclusivityRate)))
	assert.Equal(t, "2020-05-01", f.Cell(&a, col(t, model.ColRegistrationDate)))
	assert.Equal(t, "https://example.com/u/ada", f.Cell(&a, col(t, model.ColProfileURL)))
	assert.Equal(t, NullDisplay, f.Cell(&a, col(t, model.ColAvgLAIScore)))
	assert.Equal(t, NullDisplay, f.Cell(&a, col(t, model.ColUsername)))
}

func TestFormatter_Export(t *testing.T) {
	f := NewFormatter(StyleExport)
	a := model.UserAggregate{
		UserID:  "1",
		Profile: model.Profile{AcceptanceRate: ptr(50.0), ProfileURL: "example.com"},
		Metrics: model.Metrics{TotalUploads: 12345, TotalSalesRevenue: 1234.5},
	}

	assert.Equal(t, "12345", f.Cell(&a, col(t, model.ColTotalUploads)))
	assert.Equal(t, "$1234.50", f.Cell(&a, col(t, model.ColTotalSalesRevenue)))
	assert.Equal(t, "50.00%", f.Cell(&a, col(t, model.ColAcceptanceRate)))
	assert.Equal(t, "example.com", f.Cell(&a, col(t, model.ColProfileURL)))
	assert.Equal(t, "", f.Cell(&a, col(t, model.ColAvgLAIScore)))
}

func TestNormalizeLinks(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://a.com", "https://a.com"},
		{"https://a.com", "https://a.com"},
		{"a.com, //b.org", "https://a.com, https://b.org"},
		{"not a link", "not a link"},
		{"me@mail.com", "me@mail.com"},
		{"ftp://x.y", "ftp://x.y"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLinks(tt.in), tt.in)
	}
}

func TestRender(t *testing.T) {
	aggs := Run(fixture(), DefaultFilter())
	v := Render(aggs[:2], func(id string) bool { return id == "2" }, 1, 2, 2, 3)

	require.Len(t, v.Rows, 2)
	assert.False(t, v.NoResults)
	assert.Len(t, v.Headers, len(model.ExportColumns()))
	assert.Equal(t, "User ID", v.Headers[0].Label)
	assert.Equal(t, "1", v.Rows[0].Cells[0])
	assert.False(t, v.Rows[0].Selected)
	assert.True(t, v.Rows[1].Selected)
	assert.Equal(t, 2, v.TotalPages)
	assert.Equal(t, 3, v.Total)
}

func TestRender_NoResultsSentinel(t *testing.T) {
	v := Render(nil, nil, 1, 10, 1, 0)
	require.Len(t, v.Rows, 1)
	assert.True(t, v.NoResults)
	assert.Equal(t, NoResultsMessage, v.Rows[0].Cells[0])
	assert.Empty(t, v.Rows[0].UserID)
}
