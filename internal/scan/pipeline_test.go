package scan

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	grab   func(ctx context.Context) (Frame, error)
	closes int32
}

func (f *fakeSource) Grab(ctx context.Context) (Frame, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return f.grab(ctx)
}

func (f *fakeSource) Close() error {
	atomic.AddInt32(&f.closes, 1)
	return nil
}

type fakeOpener struct {
	src   *fakeSource
	err   error
	opens int32
}

func (f *fakeOpener) Open(ctx context.Context) (FrameSource, error) {
	atomic.AddInt32(&f.opens, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.src, nil
}

type stubDetector struct {
	name string
	fn   func(Frame) (string, error)
}

func (d stubDetector) Name() string                       { return d.name }
func (d stubDetector) Detect(frame Frame) (string, error) { return d.fn(frame) }

func alwaysMiss() Detector {
	return stubDetector{name: "miss", fn: func(Frame) (string, error) { return "", nil }}
}

func TestPipeline_FindsCodeAndReleasesDevice(t *testing.T) {
	var grabs int32
	src := &fakeSource{grab: func(ctx context.Context) (Frame, error) {
		if atomic.AddInt32(&grabs, 1) < 3 {
			return Frame("noise"), nil
		}
		return Frame("AREA-01"), nil
	}}
	opener := &fakeOpener{src: src}

	detector := stubDetector{name: "exact", fn: func(f Frame) (string, error) {
		if string(f) == "AREA-01" {
			return "AREA-01", nil
		}
		return "", nil
	}}

	p := NewPipeline(opener, []Detector{detector}, time.Millisecond)
	code, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "AREA-01", code)
	assert.Equal(t, StateFound, p.State())
	assert.EqualValues(t, 1, atomic.LoadInt32(&opener.opens))
	assert.EqualValues(t, 1, atomic.LoadInt32(&src.closes))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&grabs), int32(3))
}

func TestPipeline_SecondaryDetectorWins(t *testing.T) {
	src := &fakeSource{grab: func(ctx context.Context) (Frame, error) {
		return Frame("payload"), nil
	}}
	opener := &fakeOpener{src: src}

	// Primary misses on every frame and even errors once; the software
	// fallback must still get its try on the same frame.
	var primaryCalls int32
	primary := stubDetector{name: "native", fn: func(Frame) (string, error) {
		if atomic.AddInt32(&primaryCalls, 1) == 1 {
			return "", errors.New("decoder crashed")
		}
		return "", nil
	}}
	secondary := stubDetector{name: "software", fn: func(f Frame) (string, error) {
		return string(f), nil
	}}

	p := NewPipeline(opener, []Detector{primary, secondary}, time.Millisecond)
	code, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "payload", code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&primaryCalls))
}

func TestPipeline_FirstMatchShortCircuits(t *testing.T) {
	src := &fakeSource{grab: func(ctx context.Context) (Frame, error) {
		return Frame("x"), nil
	}}
	opener := &fakeOpener{src: src}

	var secondaryCalls int32
	primary := stubDetector{name: "native", fn: func(Frame) (string, error) { return "from-primary", nil }}
	secondary := stubDetector{name: "software", fn: func(Frame) (string, error) {
		atomic.AddInt32(&secondaryCalls, 1)
		return "from-secondary", nil
	}}

	p := NewPipeline(opener, []Detector{primary, secondary}, time.Millisecond)
	code, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "from-primary", code)
	assert.Zero(t, atomic.LoadInt32(&secondaryCalls))
}

func TestPipeline_StopCancelsAndIsIdempotent(t *testing.T) {
	src := &fakeSource{grab: func(ctx context.Context) (Frame, error) {
		return Frame("noise"), nil
	}}
	opener := &fakeOpener{src: src}

	p := NewPipeline(opener, []Detector{alwaysMiss()}, time.Millisecond)

	// Stop with no active session is a no-op.
	p.Stop()

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		errCh <- err
	}()

	// Let the session reach the scanning loop before stopping it.
	require.Eventually(t, func() bool { return p.State() == StateScanning },
		time.Second, time.Millisecond)

	p.Stop()
	p.Stop() // second call must be safe

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Run to return after Stop")
	}

	assert.Equal(t, StateCancelled, p.State())
	assert.EqualValues(t, 1, atomic.LoadInt32(&src.closes))
}

func TestPipeline_DeviceUnavailable(t *testing.T) {
	opener := &fakeOpener{err: ErrDeviceUnavailable}

	p := NewPipeline(opener, []Detector{alwaysMiss()}, time.Millisecond)
	_, err := p.Run(context.Background())

	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, StateFailed, p.State())
}

func TestPipeline_RestartStopsPreviousSession(t *testing.T) {
	src := &fakeSource{grab: func(ctx context.Context) (Frame, error) {
		return Frame("noise"), nil
	}}
	opener := &fakeOpener{src: src}

	p := NewPipeline(opener, []Detector{alwaysMiss()}, time.Millisecond)

	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return p.State() == StateScanning },
		time.Second, time.Millisecond)

	// A second Run must tear down the first session before acquiring the
	// device, so the handles never overlap.
	secondCtx, cancelSecond := context.WithCancel(context.Background())
	secondErr := make(chan error, 1)
	go func() {
		_, err := p.Run(secondCtx)
		secondErr <- err
	}()

	select {
	case e := <-firstErr:
		assert.ErrorIs(t, e, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("first session never ended")
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&opener.opens) == 2 },
		time.Second, time.Millisecond)

	cancelSecond()
	select {
	case e := <-secondErr:
		assert.ErrorIs(t, e, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("second session never ended")
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&src.closes))
}

func TestPipeline_NoDetectors(t *testing.T) {
	p := NewPipeline(&fakeOpener{}, nil, 0)
	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoDetectors)
}

func TestPipeline_DecodeStill(t *testing.T) {
	p := NewPipeline(nil, []Detector{TextDetector{}}, 0)

	code, ok := p.DecodeStill(Frame("  AREA-07  "))
	assert.True(t, ok)
	assert.Equal(t, "AREA-07", code)

	_, ok = p.DecodeStill(Frame{0xff, 0xfe, 0x00})
	assert.False(t, ok)
}
