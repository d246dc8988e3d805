package codec

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEncodingUnsupported = errors.New("no supported recording format")

type Format struct {
	Name      string // short name used in config: "vp9", "vp8", "h264"
	Encoder   string // backend encoder identifier
	Container string
	MimeType  string
}

func (f Format) IsZero() bool { return f.Name == "" }

func (f Format) Extension() string { return "." + f.Container }

// ContentType is the MIME type without codec parameters.
func (f Format) ContentType() string {
	if i := strings.IndexByte(f.MimeType, ';'); i >= 0 {
		return f.MimeType[:i]
	}
	return f.MimeType
}

func (f Format) String() string {
	if f.IsZero() {
		return "none"
	}
	return f.Name + "/" + f.Container
}

var (
	VP9  = Format{Name: "vp9", Encoder: "libvpx-vp9", Container: "webm", MimeType: "video/webm;codecs=vp9"}
	VP8  = Format{Name: "vp8", Encoder: "libvpx", Container: "webm", MimeType: "video/webm;codecs=vp8"}
	H264 = Format{Name: "h264", Encoder: "libx264", Container: "mp4", MimeType: "video/mp4"}
)

// Known lists every format a capture backend can be asked for, most
// efficient first.
var Known = []Format{VP9, VP8, H264}

// DefaultPreference is used when no preference is configured.
var DefaultPreference = Known

func Lookup(name string) (Format, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Known {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

func ParsePreference(names []string) ([]Format, error) {
	if len(names) == 0 {
		return DefaultPreference, nil
	}
	prefs := make([]Format, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		f, ok := Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown format %q (use vp9, vp8 or h264)", n)
		}
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		prefs = append(prefs, f)
	}
	return prefs, nil
}

// Select returns the first entry of prefs present in supported. The result
// depends only on the two inputs.
func Select(prefs []Format, supported []Format) (Format, error) {
	have := make(map[string]bool, len(supported))
	for _, f := range supported {
		have[f.Name] = true
	}
	for _, f := range prefs {
		if have[f.Name] {
			return f, nil
		}
	}
	return Format{}, ErrEncodingUnsupported
}

// FromEncoders maps backend encoder identifiers to the known formats they
// provide, in Known order.
func FromEncoders(encoders map[string]bool) []Format {
	var out []Format
	for _, f := range Known {
		if encoders[f.Encoder] {
			out = append(out, f)
		}
	}
	return out
}
