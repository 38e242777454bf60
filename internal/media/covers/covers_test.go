package covers

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/media/images"
)

func pngURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return images.DataURI("image/png", buf.Bytes())
}

func TestPrepare_NormalizesToJPEG(t *testing.T) {
	cover, err := Prepare(pngURI(t, 1200, 1800))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(cover.DataURI, "data:image/jpeg;base64,"))
	assert.Equal(t, 400, cover.Width)
	assert.Equal(t, 600, cover.Height)
	assert.NotEmpty(t, cover.BlurHash)
}

func TestPrepare_SmallCoverKeepsSize(t *testing.T) {
	cover, err := Prepare(pngURI(t, 120, 180))
	require.NoError(t, err)
	assert.Equal(t, 120, cover.Width)
	assert.Equal(t, 180, cover.Height)
}

func TestPrepare_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"not a data uri", "https://example.com/cover.jpg"},
		{"not an image", images.DataURI("image/png", []byte("hello"))},
		{"empty payload", "data:image/png;base64,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prepare(tt.uri)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)
		})
	}
}
