package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/user-dashboard/internal/model"
)

func testGeo() *Geo {
	return NewGeo(
		map[string]string{"Deutschland": "Germany", "España": "Spain"},
		map[string]string{"Germany": "Western Europe", "Spain": "Southern Europe", "United States": "North America"},
	)
}

func TestCanonicalCountry(t *testing.T) {
	t.Parallel()
	g := testGeo()

	tests := []struct {
		in   string
		want string
	}{
		{"  deutschland ", "Germany"},
		{"ESPAÑA, Madrid", "Spain"},
		{"united states", "United States"},
		{"atlantis", "Atlantis"},
		{"", UnknownCountry},
		{"0", UnknownCountry},
		{" , x", UnknownCountry},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, g.CanonicalCountry(tt.in))
		})
	}
}

func TestRegionFallsBackToOther(t *testing.T) {
	t.Parallel()
	g := testGeo()

	assert.Equal(t, "Western Europe", g.Region("Germany"))
	assert.Equal(t, OtherRegion, g.Region("Atlantis"))
	assert.Equal(t, OtherRegion, g.Region(UnknownCountry))
}

func TestApplyAll(t *testing.T) {
	t.Parallel()
	g := testGeo()

	rows := []model.FactRow{
		{UserID: "1", Profile: model.Profile{Country: "deutschland", Region: "stale"}},
		{UserID: "2", Profile: model.Profile{}},
	}
	g.ApplyAll(rows)

	assert.Equal(t, "Germany", rows[0].Country)
	assert.Equal(t, "Western Europe", rows[0].Region)
	assert.Equal(t, UnknownCountry, rows[1].Country)
	assert.Equal(t, OtherRegion, rows[1].Region)
}

func TestApplyAll_Idempotent(t *testing.T) {
	t.Parallel()
	g := NewGeo(
		map[string]string{"Bosna I Hercegovina": "Bosnia and Herzegovina"},
		map[string]string{"Bosnia and Herzegovina": "Eastern Europe"},
	)

	rows := []model.FactRow{
		{Profile: model.Profile{Country: "bosna i hercegovina"}},
		{Profile: model.Profile{Country: "Bosnia and Herzegovina"}},
	}
	g.ApplyAll(rows)
	g.ApplyAll(rows)

	for _, r := range rows {
		assert.Equal(t, "Bosnia and Herzegovina", r.Country)
		assert.Equal(t, "Eastern Europe", r.Region)
	}
	assert.Equal(t, UnknownCountry, g.CanonicalCountry(g.CanonicalCountry("")))
}

func TestLoadGeo_JSONAndYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	countries := filepath.Join(dir, "country_mappings.json")
	require.NoError(t, os.WriteFile(countries, []byte(`{"Deutschland": "Germany"}`), 0o644))

	regions := filepath.Join(dir, "region_mappings.yaml")
	require.NoError(t, os.WriteFile(regions, []byte("Western Europe:\n  - Germany\n  - France\nNorth America:\n  - Canada\n"), 0o644))

	g, err := LoadGeo(countries, regions)
	require.NoError(t, err)

	assert.Equal(t, "Germany", g.CanonicalCountry("DEUTSCHLAND"))
	assert.Equal(t, "Western Europe", g.Region("France"))
	assert.Equal(t, "North America", g.Region("Canada"))
}

func TestLoadGeo_MissingFilesAreEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	g, err := LoadGeo(filepath.Join(dir, "none.json"), "")
	require.NoError(t, err)
	assert.Equal(t, "Germany", g.CanonicalCountry("germany"))
	assert.Equal(t, OtherRegion, g.Region("Germany"))
}

func TestLoadGeo_BadDocuments(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"a":`), 0o644))
	_, err := LoadGeo(broken, "")
	require.Error(t, err)

	nested := filepath.Join(dir, "nested.json")
	require.NoError(t, os.WriteFile(nested, []byte(`{"a": {"b": "c"}}`), 0o644))
	_, err = LoadGeo("", nested)
	require.Error(t, err)
}

func TestOrderOptions(t *testing.T) {
	t.Parallel()

	got := OrderOptions([]string{"Other", "China", "Mars", "", "North America", "China", "Atlantis"}, RegionOrder)
	assert.Equal(t, []string{"North America", "China", "Other", "Atlantis", "Mars"}, got)

	got = OrderOptions([]string{"Trial - Pro - Y", "No membership", "Legacy"}, MembershipOrder)
	assert.Equal(t, []string{"No membership", "Trial - Pro - Y", "Legacy"}, got)

	assert.Empty(t, OrderOptions(nil, RegionOrder))
}
