package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// SpoolOpener acquires frames from a spool directory that an on-device
// camera helper drops captures into. Each file is one frame; Grab consumes
// the newest file and removes it.
type SpoolOpener struct {
	Dir          string
	PollInterval time.Duration
}

// Open verifies the spool directory is reachable and returns a frame source
// over it. A missing directory maps to ErrDeviceUnavailable and a filesystem
// permission error to ErrPermissionDenied, matching the device failure
// vocabulary callers expect.
func (o *SpoolOpener) Open(ctx context.Context) (FrameSource, error) {
	info, err := os.Stat(o.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("spool %s: %w", o.Dir, ErrDeviceUnavailable)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("spool %s: %w", o.Dir, ErrPermissionDenied)
	case err != nil:
		return nil, fmt.Errorf("spool %s: %w", o.Dir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("spool %s is not a directory: %w", o.Dir, ErrDeviceUnavailable)
	}

	poll := o.PollInterval
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &spoolSource{dir: o.Dir, poll: poll}, nil
}

type spoolSource struct {
	dir    string
	poll   time.Duration
	closed bool
}

func (s *spoolSource) Grab(ctx context.Context) (Frame, error) {
	if s.closed {
		return nil, ErrDeviceUnavailable
	}
	for {
		frame, ok, err := s.takeNewest()
		if err != nil {
			return nil, err
		}
		if ok {
			return frame, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

func (s *spoolSource) Close() error {
	s.closed = true
	return nil
}

// takeNewest reads and removes the most recently modified file in the spool.
func (s *spoolSource) takeNewest() (Frame, bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, false, fmt.Errorf("reading spool: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = e.Name()
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return nil, false, nil
	}

	path := filepath.Join(s.dir, newest)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("reading frame %s: %w", path, err)
	}
	_ = os.Remove(path)
	return data, true, nil
}
