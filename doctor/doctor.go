// Package doctor runs the system checks behind the -doctor flag.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"signcap/clipboard"
	"signcap/codec"
	"signcap/config"
	"signcap/hotkey"
	"signcap/media"
	"signcap/remote"
)

const (
	captureFor   = 2 * time.Second
	hotkeyWait   = 10 * time.Second
	probeTimeout = 10 * time.Second
)

// Run executes the checks in order and returns an exit code (0=all pass,
// 1=any fail). A failed camera check skips the rest.
func Run(ctx context.Context, cfg *config.Config, out io.Writer) int {
	fmt.Fprintln(out, "signcap doctor - system diagnostics")
	fmt.Fprintln(out, "===================================")

	allPass := checkHotkey(ctx, out, hotkey.New(), hotkeyWait)

	mctx, err := media.NewContext(cfg.FFmpeg)
	if err != nil {
		fmt.Fprintf(out, "\n[2/4] Camera\n  FAIL: %v\n", err)
		allPass = false
	} else {
		defer mctx.Close()
		prefs, _ := cfg.Preference()
		if !checkCamera(ctx, out, mctx, cfg.Device, cfg.CaptureConfig(), prefs, captureFor) {
			allPass = false
		}
	}

	if allPass && !checkEndpoints(ctx, out, cfg) {
		allPass = false
	}
	if allPass && !checkClipboard(out, clipboard.Read, clipboard.Copy) {
		allPass = false
	}

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

func checkHotkey(ctx context.Context, out io.Writer, hk hotkey.Hotkey, wait time.Duration) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[1/4] Hotkey detection")
	fmt.Fprintln(out, "Press Ctrl+Shift+Space...")

	if err := hk.Register(); err != nil {
		fmt.Fprintf(out, "  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		fmt.Fprintln(out, "  PASS: hotkey detected")
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		return true
	case <-time.After(wait):
		fmt.Fprintln(out, "  FAIL: timeout waiting for hotkey")
	case <-ctx.Done():
		fmt.Fprintln(out, "  FAIL: interrupted")
	}
	return false
}

func checkCamera(ctx context.Context, out io.Writer, mctx media.Context, name string, capture media.CaptureConfig, prefs []codec.Format, d time.Duration) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[2/4] Camera")

	devices, err := mctx.Devices()
	if err != nil {
		fmt.Fprintf(out, "  FAIL: cannot list cameras: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "  FAIL: no cameras found")
		return false
	}
	device := &devices[0]
	if name != "" {
		if device, err = media.FindDevice(mctx, name); err != nil {
			fmt.Fprintf(out, "  FAIL: %v\n", err)
			return false
		}
	}
	fmt.Fprintf(out, "  Using camera: %s\n", device.Name)

	stream, err := mctx.Open(device, capture)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: cannot open camera: %v\n", err)
		if errors.Is(err, media.ErrPermissionDenied) {
			fmt.Fprintln(out, "  Fix with: sudo usermod -aG video $USER, then log in again")
		}
		return false
	}
	defer stream.Close()

	format, err := codec.Select(prefs, stream.Formats())
	if err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		return false
	}

	var mu sync.Mutex
	captured := 0
	stream.SetCallback(func(chunk []byte) {
		mu.Lock()
		captured += len(chunk)
		mu.Unlock()
	})
	if err := stream.Start(format); err != nil {
		fmt.Fprintf(out, "  FAIL: cannot start capture: %v\n", err)
		if errors.Is(err, media.ErrPermissionDenied) {
			fmt.Fprintln(out, "  Allow camera access for your terminal in the system privacy settings")
		}
		return false
	}
	fmt.Fprintf(out, "  Recording %s for %s...\n", format, d)
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	stopErr := stream.Stop()
	stream.ClearCallback()
	if stopErr != nil {
		fmt.Fprintf(out, "  FAIL: capture failed: %v\n", stopErr)
		return false
	}

	mu.Lock()
	n := captured
	mu.Unlock()
	if n == 0 {
		fmt.Fprintln(out, "  FAIL: no video captured")
		return false
	}
	fmt.Fprintf(out, "  PASS: captured %.1f KB of %s\n", float64(n)/1024, format)
	return true
}

func checkEndpoints(ctx context.Context, out io.Writer, cfg *config.Config) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[3/4] Upload and translation services")

	targets := []struct{ name, url string }{
		{"upload", remote.NewCloudinary(cfg.UploadConfig()).Endpoint()},
		{"translate", cfg.InferenceBaseURL},
	}
	ok := true
	for _, t := range targets {
		status, m, err := remote.Probe(ctx, t.url, probeTimeout)
		if err != nil {
			fmt.Fprintf(out, "  FAIL: %s unreachable: %v\n", t.name, err)
			ok = false
			continue
		}
		fmt.Fprintf(out, "  PASS: %s reachable (HTTP %d, %dms)\n", t.name, status, m.Total.Milliseconds())
	}
	return ok
}

func checkClipboard(out io.Writer, read func() (string, error), write func(string) error) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "[4/4] Clipboard")

	prev, _ := read()
	defer write(prev)

	sentinel := fmt.Sprintf("signcap-doctor-%d", time.Now().UnixNano())
	if err := write(sentinel); err != nil {
		fmt.Fprintf(out, "  FAIL: clipboard copy failed: %v\n", err)
		return false
	}
	got, err := read()
	if err != nil {
		fmt.Fprintf(out, "  FAIL: could not read clipboard: %v\n", err)
		return false
	}
	if got != sentinel {
		fmt.Fprintf(out, "  FAIL: clipboard returned %q, want %q\n", got, sentinel)
		return false
	}
	fmt.Fprintln(out, "  PASS: clipboard copy verified")
	return true
}
