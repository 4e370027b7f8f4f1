package utils

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("abc", 0))

	got := Truncate("Zoë🌸Lee", 4)
	assert.Equal(t, "Zoë🌸", got)
	assert.True(t, utf8.ValidString(got))
}
