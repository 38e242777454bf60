package images

import (
	"fmt"
	"image"

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
)

// blurHashSize is the target size for BlurHash computation.
// BlurHash doesn't need high resolution - a small thumbnail produces nearly identical results.
const blurHashSize = 64

// ComputeBlurHash generates a BlurHash placeholder for img.
// Uses 4x3 components, which suits portrait covers.
func ComputeBlurHash(img image.Image) (string, error) {
	thumbnail := Fit(img, blurHashSize, draw.NearestNeighbor)

	hash, err := blurhash.Encode(4, 3, thumbnail)
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}
