// Package capture turns an image source into an uploadable page frame.
//
// A source yields raw image bytes (a camera snapshot, an uploaded file).
// Grab decodes them, rejects frames without pixels, re-encodes the frame as
// JPEG for the gateway and renders a small preview for the UI.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/image/draw"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/media/images"
)

const (
	uploadQuality  = 90
	previewQuality = 70
	// previewSide bounds the preview's longest side in pixels.
	previewSide = 480
)

// ImageSource yields the raw bytes of one captured image.
type ImageSource interface {
	Read(ctx context.Context) ([]byte, error)
}

// Frame is a captured page ready for upload.
type Frame struct {
	JPEG    []byte // full-resolution JPEG sent to the gateway
	Preview string // downscaled JPEG data URI
	Width   int
	Height  int
}

// Grab reads src and prepares a frame. Every failure is CAPTURE_UNREADY.
func Grab(ctx context.Context, src ImageSource) (*Frame, error) {
	if src == nil {
		return nil, domainerrors.Stage(domainerrors.CodeCaptureUnready, "no capture source", nil)
	}

	data, err := src.Read(ctx)
	if err != nil {
		return nil, domainerrors.Stage(domainerrors.CodeCaptureUnready, "", err)
	}

	img, _, err := images.Decode(data)
	if errors.Is(err, images.ErrEmptyImage) {
		return nil, domainerrors.Stage(domainerrors.CodeCaptureUnready, "capture source has no dimensions", err)
	}
	if err != nil {
		return nil, domainerrors.Stage(domainerrors.CodeCaptureUnready, "", err)
	}

	full, err := images.EncodeJPEG(img, uploadQuality)
	if err != nil {
		return nil, domainerrors.Stage(domainerrors.CodeCaptureUnready, "", err)
	}

	preview, err := images.EncodeJPEG(images.Fit(img, previewSide, draw.ApproxBiLinear), previewQuality)
	if err != nil {
		return nil, domainerrors.Stage(domainerrors.CodeCaptureUnready, "", err)
	}

	bounds := img.Bounds()
	return &Frame{
		JPEG:    full,
		Preview: images.DataURI("image/jpeg", preview),
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}, nil
}

// FileSource reads an image file, such as the latest snapshot a camera
// daemon writes to disk.
type FileSource struct {
	Path string
}

// Read implements ImageSource.
func (s FileSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read capture file: %w", err)
	}
	return data, nil
}

// BytesSource serves image bytes already in memory, such as an upload.
type BytesSource []byte

// Read implements ImageSource.
func (s BytesSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s, nil
}
