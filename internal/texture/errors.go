package texture

import "errors"

var (
	// ErrBadBuffer is returned for renderer output that cannot back a texture.
	ErrBadBuffer = errors.New("invalid output buffer")

	// ErrUnsupportedFormat is returned when no display format matches a buffer.
	ErrUnsupportedFormat = errors.New("unsupported texture format")

	// ErrAcquireFailed is returned when the display cannot create a texture.
	ErrAcquireFailed = errors.New("display texture acquisition failed")

	// ErrUnknownTexture is returned when releasing a texture the display
	// does not own.
	ErrUnknownTexture = errors.New("unknown display texture")
)
