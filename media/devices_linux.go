//go:build linux

package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

func listDevices(_ string) ([]DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var devices []DeviceInfo
	for _, p := range paths {
		name := filepath.Base(p)
		if data, err := os.ReadFile(filepath.Join("/sys/class/video4linux", name, "name")); err == nil {
			if n := strings.TrimSpace(string(data)); n != "" {
				name = n
			}
		}
		devices = append(devices, DeviceInfo{ID: p, Name: name})
	}
	return devices, nil
}

func checkDevice(d *DeviceInfo) error {
	f, err := os.OpenFile(d.ID, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%s: %w", d.ID, ErrPermissionDenied)
		}
		return fmt.Errorf("%s: %v: %w", d.ID, err, ErrDeviceUnavailable)
	}
	return f.Close()
}

func inputArgs(d DeviceInfo, c CaptureConfig) []string {
	return []string{
		"-f", "v4l2",
		"-framerate", strconv.Itoa(c.FrameRate),
		"-video_size", c.Size(),
		"-i", d.ID,
	}
}
