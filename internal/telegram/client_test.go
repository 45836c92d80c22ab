package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitByBytes(t *testing.T) {
	parts := splitByBytes(strings.Repeat("ab", 5), 4)
	assert.Equal(t, []string{"abab", "abab", "ab"}, parts)

	// multi-byte runes are never cut in half
	parts = splitByBytes("ééé", 4)
	assert.Equal(t, []string{"éé", "é"}, parts)

	assert.Equal(t, []string{"short"}, splitByBytes("short", 4096))
}

func TestTruncateByBytes(t *testing.T) {
	assert.Equal(t, "éé", truncateByBytes("ééé", 5))
	assert.Equal(t, "abc", truncateByBytes("abc", 10))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "synthesis-1.png", fileName("image/png", 0))
	assert.Equal(t, "synthesis-3.jpg", fileName("application/x-unknown", 2))
}
