package scan

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Failure vocabulary for capture devices, surfaced verbatim to callers.
// The pipeline never retries on its own.
var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrPermissionDenied  = errors.New("capture device access denied")
	ErrNoDetectors       = errors.New("no detectors configured")
)

// Frame is a single captured image, encoded or raw as the source provides it.
type Frame []byte

// Detector attempts to extract a scannable code from one frame. An empty
// code with a nil error means the frame contained nothing decodable; errors
// are per-frame and do not abort the session.
type Detector interface {
	Name() string
	Detect(frame Frame) (string, error)
}

// FrameSource is a live capture handle. Grab blocks until a frame is
// available or the context ends; Close releases the device.
type FrameSource interface {
	Grab(ctx context.Context) (Frame, error)
	Close() error
}

// DeviceOpener acquires a capture device for one scan session.
type DeviceOpener interface {
	Open(ctx context.Context) (FrameSource, error)
}

// State is the lifecycle stage of a scan session.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateScanning  State = "scanning"
	StateFound     State = "found"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

const defaultSampleInterval = 150 * time.Millisecond

// Pipeline samples frames from a capture device and races the configured
// detectors over each frame until one produces a code. Detectors are
// injected at construction; a deployment without the fast native decoder
// simply constructs the pipeline with the software detector alone.
type Pipeline struct {
	opener    DeviceOpener
	detectors []Detector
	interval  time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPipeline creates a pipeline over the given device opener and detector
// strategies, tried in order. A non-positive interval falls back to the
// 150 ms default.
func NewPipeline(opener DeviceOpener, detectors []Detector, interval time.Duration) *Pipeline {
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	return &Pipeline{
		opener:    opener,
		detectors: detectors,
		interval:  interval,
		state:     StateIdle,
	}
}

// State returns the current session state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run performs one scan session: it acquires the capture device, grabs a
// frame every tick, and returns the first non-empty detector result. It
// blocks until a code is found, the context ends, Stop is called, or the
// device fails. The device is released on every exit path. Calling Run
// while a session is active stops the previous session first.
func (p *Pipeline) Run(ctx context.Context) (string, error) {
	if len(p.detectors) == 0 {
		return "", ErrNoDetectors
	}

	p.Stop()

	sessionCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.state = StateStarting
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	defer close(done)
	defer cancel()

	src, err := p.opener.Open(sessionCtx)
	if err != nil {
		p.setState(StateFailed)
		return "", err
	}
	defer src.Close()

	p.setState(StateScanning)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-sessionCtx.Done():
			p.setState(StateCancelled)
			return "", sessionCtx.Err()
		case <-timer.C:
			frame, err := src.Grab(sessionCtx)
			if err != nil {
				if sessionCtx.Err() != nil {
					p.setState(StateCancelled)
					return "", sessionCtx.Err()
				}
				p.setState(StateFailed)
				return "", err
			}
			if code, ok := p.detect(frame); ok {
				p.setState(StateFound)
				return code, nil
			}
			timer.Reset(p.interval)
		}
	}
}

// Stop cancels the active session, if any, and waits for it to release the
// device. It is safe to call when no session is running and safe to call
// repeatedly.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// DecodeStill runs the detector list once over a pre-captured image, without
// a live device or sampling timer.
func (p *Pipeline) DecodeStill(frame Frame) (string, bool) {
	return p.detect(frame)
}

func (p *Pipeline) detect(frame Frame) (string, bool) {
	for _, d := range p.detectors {
		code, err := d.Detect(frame)
		if err != nil {
			log.Printf("detector %s failed on frame: %v", d.Name(), err)
			continue
		}
		if code != "" {
			return code, true
		}
	}
	return "", false
}
