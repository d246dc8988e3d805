package hotkey

import (
	"sync"
	"time"
)

type EventKind int

const (
	// Pressed fires on every key down.
	Pressed EventKind = iota
	// HeldReleased fires on key up when the key was held for at least the
	// hold threshold, so holding the combo records only while held.
	HeldReleased
)

type Event struct {
	Kind EventKind
	Held time.Duration
}

// Trigger turns raw key transitions into press and hold-release events.
type Trigger struct {
	events chan Event
	stop   chan struct{}
	once   sync.Once
}

func NewTrigger(hk Hotkey, hold time.Duration) *Trigger {
	t := &Trigger{
		events: make(chan Event, 2),
		stop:   make(chan struct{}),
	}
	go t.run(hk, hold)
	return t
}

func (t *Trigger) Events() <-chan Event { return t.events }

func (t *Trigger) Close() {
	t.once.Do(func() { close(t.stop) })
}

func (t *Trigger) run(hk Hotkey, hold time.Duration) {
	for {
		select {
		case <-t.stop:
			return
		case <-hk.Keydown():
		}
		pressedAt := time.Now()
		t.send(Event{Kind: Pressed})

		select {
		case <-t.stop:
			return
		case <-hk.Keyup():
		}
		if held := time.Since(pressedAt); held >= hold {
			t.send(Event{Kind: HeldReleased, Held: held})
		}
	}
}

func (t *Trigger) send(ev Event) {
	select {
	case t.events <- ev:
	case <-t.stop:
	}
}
