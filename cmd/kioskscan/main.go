package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"site-attendance-backend/config"
	"site-attendance-backend/internal/scan"
)

// kioskscan is the check-in station daemon. It watches the capture spool for
// badge scans, reads the worker's signed badge token out of each frame, and
// submits a check-in against the kiosk's configured work area. A badge that
// is already checked in for the day is checked out instead, so one station
// serves both ends of the shift.
func main() {
	logger := log.New(os.Stdout, "kioskscan ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	if cfg.Scanner.SpoolDir == "" {
		logger.Fatalf("scanner.spool_dir must be configured")
	}
	if cfg.Scanner.ServerURL == "" || cfg.Scanner.ProjectID == "" {
		logger.Fatalf("scanner.server_url and scanner.project_id must be configured")
	}

	var detectors []scan.Detector
	if d := scan.NewCommandDetector(cfg.Scanner.DecoderCommand, cfg.Scanner.DecoderArgs,
		time.Duration(cfg.Scanner.DecoderTimeoutSecs)*time.Second); d != nil {
		detectors = append(detectors, d)
		logger.Printf("using external decoder %s", cfg.Scanner.DecoderCommand)
	}
	detectors = append(detectors, scan.TextDetector{})

	opener := &scan.SpoolOpener{Dir: cfg.Scanner.SpoolDir, PollInterval: cfg.Scanner.SampleInterval}
	pipeline := scan.NewPipeline(opener, detectors, cfg.Scanner.SampleInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Println("shutdown signal received")
		cancel()
		pipeline.Stop()
	}()

	client := &http.Client{Timeout: 10 * time.Second}

	for {
		badge, err := pipeline.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Println("scan loop stopped")
				return
			}
			logger.Printf("scan session failed (state %s): %v", pipeline.State(), err)
			// Device errors are usually transient (spool unmounted, camera
			// busy); back off before reacquiring.
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		submit(ctx, logger, client, cfg, badge)
	}
}

type attendanceRequest struct {
	AreaID string `json:"area_id,omitempty"`
}

// submit tries a check-in for the scanned badge and falls back to a
// check-out when the day's session is already open.
func submit(ctx context.Context, logger *log.Logger, client *http.Client, cfg *config.Config, badge string) {
	status, body, err := post(ctx, client, cfg, badge, "check-in", attendanceRequest{AreaID: cfg.Scanner.AreaID})
	if err != nil {
		logger.Printf("check-in request failed: %v", err)
		return
	}

	switch status {
	case http.StatusCreated:
		logger.Println("badge checked in")
		return
	case http.StatusUnauthorized:
		logger.Println("badge rejected: not a valid token")
		return
	case http.StatusConflict:
		// Already checked in today; this scan is the other end of the shift.
	default:
		logger.Printf("check-in refused with status %d: %s", status, body)
		return
	}

	status, body, err = post(ctx, client, cfg, badge, "check-out", attendanceRequest{})
	if err != nil {
		logger.Printf("check-out request failed: %v", err)
		return
	}
	switch status {
	case http.StatusOK:
		logger.Println("badge checked out")
	case http.StatusConflict:
		logger.Println("badge already checked out today")
	default:
		logger.Printf("check-out refused with status %d: %s", status, body)
	}
}

func post(ctx context.Context, client *http.Client, cfg *config.Config, badge, action string, payload attendanceRequest) (int, string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}

	url := fmt.Sprintf("%s/api/projects/%s/attendance/%s", cfg.Scanner.ServerURL, cfg.Scanner.ProjectID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+badge)

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}
