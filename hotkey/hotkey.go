// Package hotkey watches the global ctrl+shift+space combination used to
// start and stop recording while another window has focus.
package hotkey

const Combo = "ctrl+shift+space"

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// signal does a non-blocking send; a press is dropped while the previous
// one is still unread.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
