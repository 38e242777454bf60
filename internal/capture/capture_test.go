package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
)

func pagePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGrab_BytesSource(t *testing.T) {
	frame, err := Grab(context.Background(), BytesSource(pagePNG(t, 1280, 960)))
	require.NoError(t, err)

	assert.Equal(t, 1280, frame.Width)
	assert.Equal(t, 960, frame.Height)
	// JPEG SOI marker
	assert.Equal(t, []byte{0xFF, 0xD8}, frame.JPEG[:2])
	assert.True(t, strings.HasPrefix(frame.Preview, "data:image/jpeg;base64,"))
}

func TestGrab_FileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.png")
	require.NoError(t, os.WriteFile(path, pagePNG(t, 64, 48), 0o600))

	frame, err := Grab(context.Background(), FileSource{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 64, frame.Width)
}

func TestGrab_NotReady(t *testing.T) {
	tests := []struct {
		name string
		src  ImageSource
	}{
		{"nil source", nil},
		{"missing file", FileSource{Path: filepath.Join(t.TempDir(), "absent.jpg")}},
		{"no bytes", BytesSource(nil)},
		{"garbage", BytesSource("not an image")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Grab(context.Background(), tt.src)
			assert.ErrorIs(t, err, domainerrors.ErrCaptureUnready)
		})
	}
}

func TestGrab_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Grab(ctx, BytesSource(pagePNG(t, 8, 8)))
	assert.ErrorIs(t, err, domainerrors.ErrCaptureUnready)
	assert.ErrorIs(t, err, context.Canceled)
}
