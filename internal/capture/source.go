package capture

import (
	"context"
	"image"
)

// Source is a video capture device. Acquire may return before the device
// actually produces decodable frames; readiness is signalled either by the
// event channels or by polling Ready, whichever fires first.
type Source interface {
	// Acquire opens the device. Blocking; honors ctx cancellation.
	Acquire(ctx context.Context) error

	// Release closes the device. Safe to call more than once.
	Release()

	// Ready reports whether the device currently produces frames with
	// known, non-zero dimensions.
	Ready() bool

	// Dimensions returns the native frame size. Valid only once Ready.
	Dimensions() (width, height int)

	// Capture grabs one frame.
	Capture() (image.Image, error)

	// DataDecoded fires once when the first frame data becomes decodable.
	DataDecoded() <-chan struct{}

	// PlaybackStarted fires once when the device reports active playback.
	// Some devices emit only one of the two readiness events, so the
	// pipeline races them.
	PlaybackStarted() <-chan struct{}
}
