package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// TextDetector is the pure-software fallback strategy: it accepts frames
// that already carry the payload as printable UTF-8 text, as produced by
// capture helpers that decode on the device.
type TextDetector struct{}

func (TextDetector) Name() string { return "text" }

func (TextDetector) Detect(frame Frame) (string, error) {
	if !utf8.Valid(frame) {
		return "", nil
	}
	s := strings.TrimSpace(string(frame))
	if s == "" {
		return "", nil
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return "", nil
		}
	}
	return s, nil
}

// CommandDetector is the fast native strategy: it shells out to an external
// decoder binary (such as zbarimg) that reads the frame on stdin and prints
// the decoded payload on stdout. Deployments without the binary leave it out
// of the detector list entirely.
type CommandDetector struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewCommandDetector builds a detector around the given decoder command, or
// returns nil when no command is configured.
func NewCommandDetector(command string, args []string, timeout time.Duration) *CommandDetector {
	if command == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &CommandDetector{Command: command, Args: args, Timeout: timeout}
}

func (d *CommandDetector) Name() string { return "command:" + d.Command }

func (d *CommandDetector) Detect(frame Frame) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Command, d.Args...)
	cmd.Stdin = bytes.NewReader(frame)

	out, err := cmd.Output()
	if err != nil {
		// A decoder that finds nothing exits non-zero; that is a per-frame
		// miss, not a failure.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", nil
		}
		return "", fmt.Errorf("running %s: %w", d.Command, err)
	}

	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	return line, nil
}
