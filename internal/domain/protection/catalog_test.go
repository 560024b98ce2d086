package protection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogOrder(t *testing.T) {
	t.Parallel()

	want := []StepKey{StepUpload, StepImageHash, StepFawkes, StepNightshade, StepWatermark, StepC2PA}
	assert.Equal(t, want, DefaultCatalog().Keys())
}

func TestCatalogResolve(t *testing.T) {
	t.Parallel()

	catalog := DefaultCatalog()

	tests := []struct {
		name string
		raw  string
		want StepKey
		ok   bool
	}{
		{name: "canonical key", raw: "fawkes", want: StepFawkes, ok: true},
		{name: "alias", raw: "grid", want: StepFawkes, ok: true},
		{name: "historical alias", raw: "cloaking", want: StepFawkes, ok: true},
		{name: "mixed case", raw: "NightShade", want: StepNightshade, ok: true},
		{name: "processing prefix stripped", raw: "Processing fawkes", want: StepFawkes, ok: true},
		{name: "prefix with alias", raw: "processing grid", want: StepFawkes, ok: true},
		{name: "surrounding whitespace", raw: "  watermark  ", want: StepWatermark, ok: true},
		{name: "upload alias", raw: "ingest", want: StepUpload, ok: true},
		{name: "hash alias", raw: "image_hash", want: StepImageHash, ok: true},
		{name: "unknown step", raw: "quantum_cloak", ok: false},
		{name: "empty", raw: "", ok: false},
		{name: "bare prefix", raw: "Processing ", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := catalog.Resolve(tt.raw)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCatalogLabel(t *testing.T) {
	t.Parallel()

	catalog := DefaultCatalog()
	assert.NotEmpty(t, catalog.Label(StepFawkes))
	// Unknown keys fall back to the key itself.
	assert.Equal(t, "mystery", catalog.Label(StepKey("mystery")))
}

func TestNewCatalogAliasIndex(t *testing.T) {
	t.Parallel()

	catalog := NewCatalog([]CatalogEntry{
		{Key: "resize", Label: "Resizing", Aliases: []string{"scale", "Downsample"}},
	})

	got, ok := catalog.Resolve("SCALE")
	require.True(t, ok)
	assert.Equal(t, StepKey("resize"), got)

	got, ok = catalog.Resolve("downsample")
	require.True(t, ok)
	assert.Equal(t, StepKey("resize"), got)
}
