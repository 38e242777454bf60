package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for gateway operations.
var (
	// ErrUnreachable wraps transport failures and timeouts.
	ErrUnreachable = errors.New("gateway: unreachable")
	// ErrEmptyText is returned when TTS is asked to speak blank text.
	ErrEmptyText = errors.New("gateway: text is empty")
	// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
	ErrMalformedResponse = errors.New("gateway: malformed response")
)

// Error is a non-2xx response, or a 2xx response reporting success=false.
// Message is the gateway's own message, kept verbatim for the user.
type Error struct {
	Op      string // upload, ocr, tts, file, audio, status, epub
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.Status, e.Message)
}

// MessageOf returns the gateway message carried by err, if any.
func MessageOf(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return ""
}
