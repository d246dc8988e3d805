//go:build !linux

package media

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
)

func listDevices(bin string) ([]DeviceInfo, error) {
	var input string
	switch runtime.GOOS {
	case "darwin":
		input = "avfoundation"
	case "windows":
		input = "dshow"
	default:
		return nil, fmt.Errorf("camera enumeration not supported on %s", runtime.GOOS)
	}

	// ffmpeg exits non-zero after listing; the listing is on stderr.
	out, _ := exec.Command(bin, "-hide_banner", "-f", input, "-list_devices", "true", "-i", "dummy").CombinedOutput()
	if input == "avfoundation" {
		return parseAVFoundationDevices(out), nil
	}
	return parseDShowDevices(out), nil
}

// Permission prompts surface when ffmpeg opens the device.
func checkDevice(_ *DeviceInfo) error { return nil }

func inputArgs(d DeviceInfo, c CaptureConfig) []string {
	rate := strconv.Itoa(c.FrameRate)
	if runtime.GOOS == "windows" {
		return []string{"-f", "dshow", "-video_size", c.Size(), "-framerate", rate, "-i", "video=" + d.ID}
	}
	return []string{"-f", "avfoundation", "-framerate", rate, "-video_size", c.Size(), "-i", d.ID + ":none"}
}
