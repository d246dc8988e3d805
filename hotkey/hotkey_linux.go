//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
)

const inputEventSize = 24

var ErrNoKeyboard = errors.New("no readable keyboard device (add the user to the 'input' group and log in again)")

// comboTracker follows ctrl+shift+space across evdev key events.
type comboTracker struct {
	ctrl, shift, down bool
}

// feed returns which transition of the combo, if any, the event caused.
func (c *comboTracker) feed(code uint16, value int32) (pressed, released bool) {
	isDown := value == keyPress
	isUp := value == keyRelease
	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = isDown || (!isUp && c.ctrl)
	case keyLShift, keyRShift:
		c.shift = isDown || (!isUp && c.shift)
	case keySpace:
		if isDown && !c.down && c.ctrl && c.shift {
			c.down = true
			return true, false
		}
		if isUp && c.down {
			c.down = false
			return false, true
		}
	}
	return false, false
}

type evdevHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}
	files   []*os.File
	once    sync.Once
}

func New() Hotkey {
	return &evdevHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *evdevHotkey) Register() error {
	paths, err := findKeyboards()
	if err != nil {
		return err
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		go h.readEvents(f)
	}
	if len(h.files) == 0 {
		return ErrNoKeyboard
	}
	return nil
}

// readEvents ends when Unregister closes f.
func (h *evdevHotkey) readEvents(f *os.File) {
	buf := make([]byte, inputEventSize*16)
	var combo comboTracker
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			if binary.LittleEndian.Uint16(buf[i+16:]) != evKey {
				continue
			}
			code := binary.LittleEndian.Uint16(buf[i+18:])
			value := int32(binary.LittleEndian.Uint32(buf[i+20:]))
			pressed, released := combo.feed(code, value)
			if pressed {
				signal(h.keydown)
			}
			if released {
				signal(h.keyup)
			}
		}
	}
}

func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.keyup }

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var keyboards []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "event") && isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	if len(keyboards) == 0 {
		return nil, ErrNoKeyboard
	}
	return keyboards, nil
}

// isKeyboard treats devices with a wide key capability bitmap as keyboards.
func isKeyboard(eventName string) bool {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}
