package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// State is the capture pipeline lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateArmed     State = "armed"
	StateCapturing State = "capturing"
	StateStopped   State = "stopped"
)

const frameDataPrefix = "data:image/jpeg;base64,"

var (
	ErrSourceNotReady = errors.New("capture source not ready")
	errNotIdle        = errors.New("capture pipeline already running")
)

// FrameSender delivers one encoded frame. A non-nil error means the frame was
// dropped; the pipeline counts the drop and moves on without retrying.
type FrameSender interface {
	SendFrame(data string) error
}

// Config tunes the capture pipeline.
type Config struct {
	// FramesPerSecond is the capture tick rate.
	FramesPerSecond int
	// MaxDimension caps the larger frame dimension; frames are scaled
	// down preserving aspect ratio, never scaled up.
	MaxDimension int
	// JPEGQuality is the encoder quality, 1..100.
	JPEGQuality int
	// ReadinessRecheck lists delays after arming at which the source is
	// polled for readiness, covering devices that never emit either
	// readiness event.
	ReadinessRecheck []time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.FramesPerSecond <= 0 {
		out.FramesPerSecond = 60
	}
	if out.MaxDimension <= 0 {
		out.MaxDimension = 900
	}
	if out.JPEGQuality <= 0 || out.JPEGQuality > 100 {
		out.JPEGQuality = 40
	}
	if len(out.ReadinessRecheck) == 0 {
		out.ReadinessRecheck = []time.Duration{50 * time.Millisecond, 150 * time.Millisecond}
	}
	return out
}

// Pipeline drives one capture source: acquire, wait for readiness, then tick
// at the configured rate, downscaling and JPEG-encoding each frame before
// handing it to the sender. Frames are only ever produced in the capturing
// state; a frame that cannot be captured or delivered is dropped, never
// queued.
type Pipeline struct {
	cfg    Config
	source Source
	sender FrameSender
	logger *zap.SugaredLogger

	onState func(State)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
}

func NewPipeline(cfg Config, source Source, sender FrameSender, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		cfg:    cfg.withDefaults(),
		source: source,
		sender: sender,
		logger: logger,
		state:  StateIdle,
	}
}

// OnStateChange registers a lifecycle observer. Must be set before Start.
func (p *Pipeline) OnStateChange(fn func(state State)) {
	p.onState = fn
}

// Start acquires the source, waits out the readiness race, and begins the
// capture loop in a background goroutine. It returns once capturing has
// started, or with the acquisition error. A failed or stopped pipeline may be
// started again; it re-enters acquisition from scratch.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateIdle && p.state != StateStopped {
		p.mu.Unlock()
		return errNotIdle
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	p.setState(StateAcquiring)
	if err := p.source.Acquire(runCtx); err != nil {
		p.fail()
		return fmt.Errorf("capture source unavailable: %w", err)
	}

	p.setState(StateArmed)
	if err := p.awaitReadiness(runCtx); err != nil {
		p.fail()
		return err
	}

	p.setState(StateCapturing)
	go p.loop(runCtx)
	return nil
}

// fail releases the source and returns to idle so the owner can retry.
func (p *Pipeline) fail() {
	p.source.Release()
	p.setState(StateIdle)
}

// Stop halts capture and releases the source. Idempotent.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.shutdown()
}

func (p *Pipeline) shutdown() {
	p.source.Release()
	p.setState(StateStopped)
}

func (p *Pipeline) setState(state State) {
	p.mu.Lock()
	changed := p.state != state
	p.state = state
	fn := p.onState
	p.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}

// State reports the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// FramesSent is the count of frames handed to the sender successfully.
func (p *Pipeline) FramesSent() uint64 { return p.framesSent.Load() }

// FramesDropped counts frames lost to an unready source, capture failure, or
// a sender that refused delivery.
func (p *Pipeline) FramesDropped() uint64 { return p.framesDropped.Load() }

// awaitReadiness races the source's readiness events against timed polls of
// Ready. Whichever signal lands first wins; sources that emit only one of
// the two events, or neither, are all covered.
func (p *Pipeline) awaitReadiness(ctx context.Context) error {
	if p.source.Ready() {
		return nil
	}

	recheck := make(chan struct{}, len(p.cfg.ReadinessRecheck))
	for _, delay := range p.cfg.ReadinessRecheck {
		timer := time.AfterFunc(delay, func() {
			select {
			case recheck <- struct{}{}:
			default:
			}
		})
		defer timer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.source.DataDecoded():
			return nil
		case <-p.source.PlaybackStarted():
			return nil
		case <-recheck:
			if p.source.Ready() {
				return nil
			}
		}
	}
}

func (p *Pipeline) loop(ctx context.Context) {
	interval := time.Second / time.Duration(p.cfg.FramesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.captureOne()
		}
	}
}

func (p *Pipeline) captureOne() {
	if p.State() != StateCapturing {
		return
	}
	if !p.source.Ready() {
		p.framesDropped.Add(1)
		return
	}

	img, err := p.source.Capture()
	if err != nil {
		p.framesDropped.Add(1)
		p.logger.Debugw("frame capture failed", "error", err)
		return
	}

	data, err := p.encodeFrame(img)
	if err != nil {
		p.framesDropped.Add(1)
		p.logger.Warnw("frame encode failed", "error", err)
		return
	}

	if err := p.sender.SendFrame(data); err != nil {
		p.framesDropped.Add(1)
		return
	}
	p.framesSent.Add(1)
}

// encodeFrame downscales the frame so its larger dimension fits the cap,
// JPEG-encodes it, and wraps the bytes as a base64 data URL.
func (p *Pipeline) encodeFrame(img image.Image) (string, error) {
	bounds := img.Bounds()
	if bounds.Dx() > p.cfg.MaxDimension || bounds.Dy() > p.cfg.MaxDimension {
		// Fit never upscales, so small frames pass through untouched.
		img = imaging.Fit(img, p.cfg.MaxDimension, p.cfg.MaxDimension, imaging.Linear)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.cfg.JPEGQuality)); err != nil {
		return "", err
	}
	return frameDataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
