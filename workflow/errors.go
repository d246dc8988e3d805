package workflow

import (
	"errors"
	"fmt"
	"time"

	"signcap/codec"
	"signcap/media"
	"signcap/remote"
)

var (
	ErrClosed    = errors.New("workflow closed")
	ErrBusy      = errors.New("operation already in progress")
	ErrNoCamera  = errors.New("camera not ready")
	ErrDiscarded = errors.New("result discarded after reset or close")
)

// StateError rejects an operation that the current state does not allow.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

type ClipProblem int

const (
	ClipEmpty ClipProblem = iota
	ClipTooShort
	ClipTooLong
	ClipTooLarge
	ClipNotVideo
	ClipUnreadable
)

type ClipError struct {
	Problem ClipProblem
	Detail  string
	Err     error
}

func (e *ClipError) Error() string {
	switch e.Problem {
	case ClipEmpty:
		return "recording is empty"
	case ClipTooShort:
		return "recording too short: " + e.Detail
	case ClipTooLong:
		return "recording too long: " + e.Detail
	case ClipTooLarge:
		return "file too large: " + e.Detail
	case ClipNotVideo:
		return "not a video file: " + e.Detail
	}
	if e.Err != nil {
		return "cannot read file: " + e.Err.Error()
	}
	return "cannot read file"
}

func (e *ClipError) Unwrap() error { return e.Err }

func tooShort(d, limit time.Duration) *ClipError {
	return &ClipError{Problem: ClipTooShort, Detail: fmt.Sprintf("%.1fs, minimum %s", d.Seconds(), limit)}
}

func tooLong(d, limit time.Duration) *ClipError {
	return &ClipError{Problem: ClipTooLong, Detail: fmt.Sprintf("%.1fs, maximum %s", d.Seconds(), limit)}
}

// Message turns a stage failure into the text shown to the user.
func Message(err error) string {
	var (
		clipErr  *ClipError
		upErr    *remote.UploadError
		inferErr *remote.InferenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, media.ErrPermissionDenied):
		return "Camera access was denied. Allow camera access and try again."
	case errors.Is(err, media.ErrDeviceUnavailable):
		return "No camera is available. Connect a camera or close other apps using it."
	case errors.Is(err, codec.ErrEncodingUnsupported):
		return "This camera cannot record in a supported video format."
	case errors.As(err, &clipErr):
		return clipErr.Error()
	case errors.As(err, &upErr):
		return upErr.Error()
	case errors.As(err, &inferErr):
		return inferErr.Error()
	}
	return err.Error()
}
