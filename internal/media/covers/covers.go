// Package covers normalizes document cover images.
//
// Covers arrive as data URIs (from the gateway's e-book extraction or a
// user upload). They are decoded, scaled down, re-encoded as JPEG and given
// a BlurHash placeholder so list views can render before the image loads.
package covers

import (
	"errors"
	"fmt"

	"golang.org/x/image/draw"

	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/media/images"
)

const (
	// maxCoverSize limits the decoded payload to prevent memory exhaustion.
	maxCoverSize = 10 * 1024 * 1024 // 10MB

	// maxCoverSide bounds the stored cover's longest side in pixels.
	maxCoverSide = 600

	jpegQuality = 85
)

// Cover is a normalized cover image.
type Cover struct {
	DataURI  string
	BlurHash string
	Width    int
	Height   int
}

// Prepare validates and normalizes a cover data URI.
// Malformed or oversized input yields a VALIDATION error.
func Prepare(dataURI string) (*Cover, error) {
	_, data, err := images.ParseDataURI(dataURI)
	if err != nil {
		return nil, domainerrors.Validation("cover must be a base64 image data URI").WithCause(err)
	}
	if len(data) > maxCoverSize {
		return nil, domainerrors.Validationf("cover exceeds %d bytes", maxCoverSize)
	}

	img, _, err := images.Decode(data)
	if err != nil {
		if errors.Is(err, images.ErrEmptyImage) {
			return nil, domainerrors.Validation("cover image is empty")
		}
		return nil, domainerrors.Validation("cover is not a supported image").WithCause(err)
	}

	scaled := images.Fit(img, maxCoverSide, draw.CatmullRom)
	encoded, err := images.EncodeJPEG(scaled, jpegQuality)
	if err != nil {
		return nil, fmt.Errorf("encode cover: %w", err)
	}

	hash, err := images.ComputeBlurHash(scaled)
	if err != nil {
		return nil, fmt.Errorf("cover placeholder: %w", err)
	}

	bounds := scaled.Bounds()
	return &Cover{
		DataURI:  images.DataURI("image/jpeg", encoded),
		BlurHash: hash,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}
