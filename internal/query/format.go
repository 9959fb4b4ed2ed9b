package query

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/user-dashboard/internal/model"
)

// Style selects how cells are rendered.
type Style int

const (
	// StyleDisplay renders for the page view: thousands separators and
	// "-" for nulls.
	StyleDisplay Style = iota
	// StyleExport renders for files: no grouping and empty nulls.
	StyleExport
)

type unit int

const (
	unitNone unit = iota
	unitCurrency
	unitPercent
	unitLink
)

var units = map[string]unit{
	model.ColTotalSalesRevenue: unitCurrency,
	model.ColExclusivityRate:   unitPercent,
	model.ColAcceptanceRate:    unitPercent,
	model.ColProfileURL:        unitLink,
	model.ColSocialLinks:       unitLink,
}

// NullDisplay stands in for a null cell on the page view.
const NullDisplay = "-"

// Formatter renders aggregate cells. A Formatter is not safe for
// concurrent use.
type Formatter struct {
	style Style
	p     *message.Printer
}

// NewFormatter returns a formatter for style using English number grouping.
func NewFormatter(style Style) *Formatter {
	return &Formatter{style: style, p: message.NewPrinter(language.English)}
}

// Cell formats column col of a.
func (f *Formatter) Cell(a *model.UserAggregate, col model.Column) string {
	return f.Value(col, a.Value(col.Name))
}

// Value formats v as a cell of col.
func (f *Formatter) Value(col model.Column, v model.Value) string {
	if v.Null {
		if f.style == StyleDisplay {
			return NullDisplay
		}
		return ""
	}
	u := units[col.Name]
	switch v.Kind {
	case model.KindDate:
		return v.Time.Format(model.DateLayout)
	case model.KindInt:
		return f.integer(int64(v.Num))
	case model.KindFloat:
		switch u {
		case unitCurrency:
			return "$" + f.decimal(v.Num)
		case unitPercent:
			return f.decimal(v.Num) + "%"
		}
		return f.decimal(v.Num)
	}
	if u == unitLink && f.style == StyleDisplay {
		return NormalizeLinks(v.Str)
	}
	return v.Str
}

func (f *Formatter) integer(n int64) string {
	if f.style == StyleExport {
		return strconv.FormatInt(n, 10)
	}
	return f.p.Sprintf("%d", n)
}

func (f *Formatter) decimal(x float64) string {
	if f.style == StyleExport {
		return strconv.FormatFloat(x, 'f', 2, 64)
	}
	return f.p.Sprintf("%.2f", x)
}

// NormalizeLinks rewrites each comma-separated link that looks like a
// bare host or an http URL to https.
func NormalizeLinks(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = normalizeLink(strings.TrimSpace(p))
	}
	return strings.Join(parts, ", ")
}

func normalizeLink(s string) string {
	switch {
	case s == "":
		return s
	case strings.HasPrefix(s, "https://"):
		return s
	case strings.HasPrefix(s, "http://"):
		return "https://" + strings.TrimPrefix(s, "http://")
	case strings.HasPrefix(s, "//"):
		return "https:" + s
	case strings.Contains(s, ".") && !strings.ContainsAny(s, " @") && !strings.Contains(s, "://"):
		return "https://" + s
	}
	return s
}
