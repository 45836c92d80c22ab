package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c := Default()

	require.NotEmpty(t, c.Descriptors())
	require.NotEmpty(t, c.Templates())

	defaults := c.Defaults()
	for _, d := range c.Descriptors() {
		assert.Equal(t, d.Default, defaults[d.ID], d.ID)
	}

	for _, tpl := range c.Templates() {
		assert.NotEmpty(t, tpl.Prompt, tpl.ID)
		assert.Len(t, tpl.Descriptors, len(c.Descriptors()), "template %s should cover every descriptor", tpl.ID)
	}
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "descriptors: []"},
		{"min above max", "descriptors:\n  - {id: a, min: 10, max: 1, default: 5}"},
		{"default outside range", "descriptors:\n  - {id: a, min: 0, max: 10, default: 50}"},
		{"duplicate id", "descriptors:\n  - {id: a, min: 0, max: 10, default: 5}\n  - {id: a, min: 0, max: 10, default: 5}"},
		{"unknown template descriptor", "descriptors:\n  - {id: a, min: 0, max: 10, default: 5}\ntemplates:\n  - {id: t, name: T, prompt: p, descriptors: {b: 1}}"},
		{"not yaml", ":::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestNormalizeMergesAndClamps(t *testing.T) {
	c, err := Load([]byte(`
descriptors:
  - {id: a, min: 0, max: 10, default: 5}
  - {id: b, min: -1, max: 1, default: 0}
`))
	require.NoError(t, err)

	got := c.Normalize(Values{"a": 42, "zzz": 3})

	assert.Equal(t, Values{"a": 10, "b": 0}, got)
}

func TestClamp(t *testing.T) {
	c := Default()

	v, ok := c.Clamp("realism", -5)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	v, ok = c.Clamp("realism", 500)
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	_, ok = c.Clamp("missing", 1)
	assert.False(t, ok)
}

func TestTemplatesAreCopies(t *testing.T) {
	c := Default()
	tpl, ok := c.Template("neon_noir")
	require.True(t, ok)

	tpl.Descriptors["realism"] = -1

	again, _ := c.Template("neon_noir")
	assert.NotEqual(t, -1.0, again.Descriptors["realism"])
}

func TestLevel(t *testing.T) {
	d := Descriptor{ID: "x", Min: 0, Max: 100, Default: 50, Low: "cool", High: "warm"}

	assert.Equal(t, "strongly cool", d.Level(0))
	assert.Equal(t, "somewhat cool", d.Level(30))
	assert.Equal(t, "balanced between cool and warm", d.Level(50))
	assert.Equal(t, "somewhat warm", d.Level(70))
	assert.Equal(t, "strongly warm", d.Level(1000))
}
