package synth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asset-synth-studio/internal/descriptor"
)

func TestNormalizeAspectRatio(t *testing.T) {
	tests := map[string]string{
		"1:1":      "1:1",
		" 16 : 09": "16:9",
		"4x3":      "",
		"0:1":      "",
		"-1:2":     "",
		"":         "",
		"a:b":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeAspectRatio(in), in)
	}

	assert.True(t, IsSupportedAspectRatio("09:16"))
	assert.False(t, IsSupportedAspectRatio("5:4"))
}

func TestParseDescriptors(t *testing.T) {
	c := descriptor.Default()

	t.Run("wrapped and fenced", func(t *testing.T) {
		raw := "```json\n{\"descriptors\": {\"realism\": 91, \"warmth\": 400}}\n```"
		got, err := ParseDescriptors(c, raw)
		require.NoError(t, err)
		assert.Equal(t, 91.0, got["realism"])
		assert.Equal(t, 100.0, got["warmth"])
		assert.Equal(t, c.Defaults()["complexity"], got["complexity"])
	})

	t.Run("flat object", func(t *testing.T) {
		got, err := ParseDescriptors(c, `Sure! {"abstraction": 3, "bogus": 9}`)
		require.NoError(t, err)
		assert.Equal(t, 3.0, got["abstraction"])
		_, ok := got["bogus"]
		assert.False(t, ok)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := ParseDescriptors(c, "I cannot help with that")
		assert.Error(t, err)
	})

	t.Run("only unknown ids", func(t *testing.T) {
		_, err := ParseDescriptors(c, `{"nope": 1}`)
		assert.Error(t, err)
	})
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a red fox", CleanText(`"a red fox"`))
	assert.Equal(t, "a red fox", CleanText("```\na red fox\n```"))
	assert.Equal(t, "a red fox", CleanText("“a red fox”"))
	assert.Equal(t, `say "hi" now`, CleanText(`say "hi" now`))
}

func TestInstructionsMentionEveryDescriptor(t *testing.T) {
	c := descriptor.Default()

	extract := ExtractInstruction(c)
	compose := ImagePromptInstruction(c, "a bronze statue", "in a garden", c.Defaults())
	for _, d := range c.Descriptors() {
		assert.Contains(t, extract, d.ID)
		assert.Contains(t, compose, d.Label)
	}
	assert.Contains(t, compose, "a bronze statue")
	assert.Contains(t, compose, "in a garden")

	withoutAsset := ImagePromptInstruction(c, "", "in a garden", c.Defaults())
	assert.NotContains(t, withoutAsset, "REFERENCE ASSET")
}

func TestComposePrompt(t *testing.T) {
	c := descriptor.Default()
	values := c.Defaults()
	values["realism"] = 100

	got := ComposePrompt(c, "", "a lighthouse", values)

	assert.True(t, strings.HasPrefix(got, "a lighthouse"))
	assert.Contains(t, got, "strongly photorealistic")
	assert.NotContains(t, got, "Based on a reference")
}
