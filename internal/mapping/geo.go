// Package mapping canonicalizes country names and derives regions from
// static lookup documents, and orders dropdown options the way the
// business expects them.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/user-dashboard/internal/model"
)

const (
	// UnknownCountry replaces empty and zero country values.
	UnknownCountry = "Unknown"
	// OtherRegion is the region of every country missing from the region table.
	OtherRegion = "Other"
)

// Geo maps raw country values to English names and regions. A Geo is
// immutable after construction and safe for concurrent use.
type Geo struct {
	countries map[string]string // local name -> English name
	regions   map[string]string // English name -> region
	known     map[string]bool   // canonical English names, kept verbatim
}

// NewGeo builds a Geo from in-memory tables. Nil maps are treated as empty.
func NewGeo(countries, regions map[string]string) *Geo {
	g := &Geo{
		countries: make(map[string]string, len(countries)),
		regions:   make(map[string]string, len(regions)),
		known:     make(map[string]bool, len(countries)+len(regions)),
	}
	for k, v := range countries {
		g.countries[k] = v
		g.known[v] = true
	}
	for k, v := range regions {
		g.regions[k] = v
		g.known[k] = true
	}
	return g
}

// LoadGeo reads the country-name and region documents. Either path may be
// empty or point at a missing file, in which case that table is empty and
// every country keeps its cleaned name or falls back to OtherRegion.
func LoadGeo(countryPath, regionPath string) (*Geo, error) {
	countries, err := loadTable(countryPath)
	if err != nil {
		return nil, err
	}
	regions, err := loadTable(regionPath)
	if err != nil {
		return nil, err
	}
	zap.L().Info("mapping: geo tables loaded",
		zap.Int("countries", len(countries)),
		zap.Int("regions", len(regions)),
	)
	return NewGeo(countries, regions), nil
}

// loadTable reads a JSON or YAML document. Two shapes are accepted:
// {"key": "value"} and {"value": ["key", ...]}; the latter is inverted.
func loadTable(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		zap.L().Warn("mapping: table not found, skipping", zap.String("path", path))
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: read %s", path)
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: decode %s", path)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case string:
			out[k] = x
		case []any:
			for _, item := range x {
				out[fmt.Sprint(item)] = k
			}
		default:
			return nil, eris.Errorf("mapping: %s: unsupported value for %q", path, k)
		}
	}
	return out, nil
}

// CanonicalCountry trims the raw value, keeps the part before the first
// comma, title-cases it, and translates it to English when the name table
// knows it. Empty and "0" become UnknownCountry. Names that are already
// canonical come back unchanged, so applying it twice is a no-op.
func (g *Geo) CanonicalCountry(raw string) string {
	s := strings.TrimSpace(raw)
	if head, _, ok := strings.Cut(s, ","); ok {
		s = strings.TrimSpace(head)
	}
	if s == "" || s == "0" {
		return UnknownCountry
	}
	if g.known[s] {
		return s
	}
	s = cases.Title(language.Und).String(s)
	if en, ok := g.countries[s]; ok {
		return en
	}
	return s
}

// Region returns the region of a canonical country name.
func (g *Geo) Region(country string) string {
	if r, ok := g.regions[country]; ok && r != "" {
		return r
	}
	return OtherRegion
}

// Apply canonicalizes the profile's country and recomputes its region.
func (g *Geo) Apply(p *model.Profile) {
	p.Country = g.CanonicalCountry(p.Country)
	p.Region = g.Region(p.Country)
}

// ApplyAll runs Apply over every row.
func (g *Geo) ApplyAll(rows []model.FactRow) {
	for i := range rows {
		g.Apply(&rows[i].Profile)
	}
}
