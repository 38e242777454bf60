package api

// API limits and constants.
const (
	// MaxUploadSize is the maximum allowed size for e-book uploads (50 MB).
	MaxUploadSize = 50 << 20

	// MaxImageSize is the maximum allowed size for captured frames (10 MB).
	MaxImageSize = 10 << 20
)
