package capture

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"
)

// TestPatternSource is a synthetic capture device producing a moving color
// gradient. It stands in for a real camera in development and in tests; the
// warmup delay models the gap between opening a device and its first
// decodable frame.
type TestPatternSource struct {
	width  int
	height int
	warmup time.Duration

	mu       sync.Mutex
	acquired bool
	ready    bool
	tick     int

	dataDecoded     chan struct{}
	playbackStarted chan struct{}
	signalOnce      sync.Once
}

func NewTestPatternSource(width, height int, warmup time.Duration) *TestPatternSource {
	return &TestPatternSource{
		width:           width,
		height:          height,
		warmup:          warmup,
		dataDecoded:     make(chan struct{}),
		playbackStarted: make(chan struct{}),
	}
}

func (s *TestPatternSource) Acquire(ctx context.Context) error {
	s.mu.Lock()
	s.acquired = true
	s.mu.Unlock()

	if s.warmup <= 0 {
		s.markReady()
		return nil
	}

	go func() {
		select {
		case <-time.After(s.warmup):
			s.markReady()
		case <-ctx.Done():
		}
	}()
	return nil
}

func (s *TestPatternSource) markReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.signalOnce.Do(func() {
		close(s.dataDecoded)
		close(s.playbackStarted)
	})
}

func (s *TestPatternSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired = false
	s.ready = false
}

func (s *TestPatternSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired && s.ready
}

func (s *TestPatternSource) Dimensions() (int, int) {
	return s.width, s.height
}

// Capture renders the next gradient frame. The pattern shifts each call so
// consecutive frames differ.
func (s *TestPatternSource) Capture() (image.Image, error) {
	s.mu.Lock()
	if !s.acquired || !s.ready {
		s.mu.Unlock()
		return nil, ErrSourceNotReady
	}
	s.tick++
	shift := s.tick
	s.mu.Unlock()

	img := image.NewNRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x + shift) % 256),
				G: uint8((y + shift) % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img, nil
}

func (s *TestPatternSource) DataDecoded() <-chan struct{} { return s.dataDecoded }

func (s *TestPatternSource) PlaybackStarted() <-chan struct{} { return s.playbackStarted }
