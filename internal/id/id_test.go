package id

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for range count {
		id, err := Generate(PrefixRun)
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	for _, prefix := range []string{PrefixRun, PrefixSession, PrefixClient, PrefixInstance} {
		t.Run(prefix, func(t *testing.T) {
			id, err := Generate(prefix)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(id, prefix+"-"))
			// NanoID default length is 21.
			assert.Len(t, id, len(prefix)+1+21)
		})
	}
}

func TestFileName(t *testing.T) {
	name := FileName(".jpg")

	assert.Equal(t, ".jpg", filepath.Ext(name))
	_, err := uuid.Parse(strings.TrimSuffix(name, ".jpg"))
	assert.NoError(t, err)
	assert.NotEqual(t, name, FileName(".jpg"))
}
