package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache", "data.json")

	var missing map[string]int
	ok, err := LoadJSONFile(path, &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SaveJSONFile(path, map[string]int{"a": 1}))
	assert.True(t, CheckFileExists(path))
	assert.True(t, CheckDirExists(filepath.Dir(path)))

	var loaded map[string]int
	ok, err = LoadJSONFile(path, &loaded)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, loaded["a"])
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "5s", FormatTimeDuration(5.9))
	assert.Equal(t, "2m 5s", FormatTimeDuration(125))
	assert.Equal(t, "1h 1m 1s", FormatTimeDuration(3661))

	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.50 KB", FormatFileSize(1536))
	assert.Equal(t, "2.00 MB", FormatFileSize(2*1024*1024))
}
