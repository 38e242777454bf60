// Package id generates identifiers for ephemeral Lutrin objects.
// Library documents use store-assigned integer ids and never come through here.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for generated identifiers.
const (
	PrefixRun      = "run"
	PrefixSession  = "ses"
	PrefixClient   = "sse"
	PrefixInstance = "lut"
)

// Generate creates a prefixed NanoID, e.g. "run-V1StGXR8_Z5jdHi6B-myT".
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// FileName returns a collision-free file name with the given extension,
// used when handing captured frames and clips to other systems.
func FileName(ext string) string {
	return uuid.NewString() + ext
}
