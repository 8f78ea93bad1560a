package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractLines(t *testing.T) {
	content := "one\ntwo\nthree"

	got, ok := ExtractLines(content, 1, 2)
	assert.True(t, ok)
	assert.Equal(t, "one\ntwo", got)

	got, ok = ExtractLines(content, 2, 100)
	assert.True(t, ok)
	assert.Equal(t, "two\nthree", got)

	_, ok = ExtractLines(content, 3, 1)
	assert.False(t, ok)
}
