package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, SplitAndTrim("  "))
	assert.Equal(t, []string{"http://a", "http://b"}, SplitAndTrim(" http://a ,, http://b, http://a"))
}

func TestStringMapColumn(t *testing.T) {
	assert.Nil(t, EncodeStringMap(nil))
	assert.Nil(t, DecodeStringMap(nil))
	assert.Nil(t, DecodeStringMap([]byte("not json")))

	raw := EncodeStringMap(map[string]string{"owner": "data-eng"})
	assert.Equal(t, map[string]string{"owner": "data-eng"}, DecodeStringMap(raw))
}
