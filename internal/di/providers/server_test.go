package providers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadInstanceID_PersistsAcrossStarts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := loadInstanceID(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "lut-"), first)

	second, err := loadInstanceID(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadInstanceID_RegeneratesBlankFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "instance-id"), []byte("  \n"), 0o644))

	got, err := loadInstanceID(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, got)

	data, err := os.ReadFile(filepath.Join(dir, "instance-id"))
	require.NoError(t, err)
	assert.Equal(t, got, strings.TrimSpace(string(data)))
}
