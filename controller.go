package main

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"signcap/beep"
	"signcap/clipboard"
	"signcap/log"
	"signcap/recorder"
	"signcap/settings"
	"signcap/workflow"
)

const elapsedInterval = 100 * time.Millisecond

// controller turns user actions from any front end into workflow calls and
// fans workflow snapshots out to the sinks.
type controller struct {
	ctx      context.Context
	wf       *workflow.Workflow
	settings *settings.Settings
	copier   *clipboard.Copier
	stats    *sessionStats

	bg sync.WaitGroup

	mu       sync.Mutex
	sinks    []Sink
	last     workflow.Snapshot
	tickStop chan struct{}
}

func newController(ctx context.Context, s *settings.Settings, copier *clipboard.Copier) *controller {
	c := &controller{
		ctx:      ctx,
		settings: s,
		copier:   copier,
		stats:    &sessionStats{},
	}
	s.OnChange(c.prefsChanged)
	return c
}

// attach must be called before any action; the workflow is built with
// observe as its observer, so it cannot exist before the controller.
func (c *controller) attach(wf *workflow.Workflow) { c.wf = wf }

func (c *controller) addSink(s Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	last := c.last
	c.mu.Unlock()
	s.Prefs(c.settings.Get())
	s.Update(last)
}

func (c *controller) eachSink(fn func(Sink)) {
	c.mu.Lock()
	sinks := slices.Clone(c.sinks)
	c.mu.Unlock()
	for _, s := range sinks {
		fn(s)
	}
}

func (c *controller) snapshot() workflow.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *controller) observe(s workflow.Snapshot) {
	c.mu.Lock()
	prev := c.last.State
	c.last = s
	c.mu.Unlock()

	if s.State != prev {
		log.StateChange(prev.String(), s.State.String(), s.Message)
		c.transition(s)
	}
	c.eachSink(func(k Sink) { k.Update(s) })
}

func (c *controller) transition(s workflow.Snapshot) {
	if s.State == workflow.Recording {
		c.startTicker()
	} else {
		c.stopTicker()
	}

	switch s.State {
	case workflow.Idle:
		c.copier.Clear()
	case workflow.Recording:
		beep.PlayStart()
	case workflow.Recorded:
		c.copier.Clear()
		if s.Clip != nil && s.Clip.Source == recorder.SourceCamera {
			beep.PlayEnd()
			log.Recording(s.Clip.Format.String(), s.Clip.Chunks, s.Clip.Size(), s.Clip.Duration)
		}
	case workflow.Succeeded:
		beep.PlaySuccess()
		size := 0
		if s.Clip != nil {
			size = s.Clip.Size()
		}
		if s.UploadStats != nil {
			log.Stage(stageMetrics("upload", s.UploadStats, size))
		}
		if s.PredictStats != nil {
			log.Stage(stageMetrics("predict", s.PredictStats, 0))
		}
		if s.Result != nil {
			log.TranslationText(s.Result.Text, s.Result.ConfidenceLabel())
		}
		c.stats.add(recordFrom(s))
	case workflow.Failed:
		beep.PlayError()
		log.Errorf("workflow failed: %v", s.Err)
	}
}

func (c *controller) startTicker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	c.tickStop = stop
	go func() {
		ticker := time.NewTicker(elapsedInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s := c.wf.Snapshot()
				if s.State != workflow.Recording {
					continue
				}
				c.eachSink(func(k Sink) { k.Elapsed(s.Elapsed) })
			}
		}
	}()
}

func (c *controller) stopTicker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

func (c *controller) prefsChanged(p settings.Preferences) {
	c.eachSink(func(k Sink) { k.Prefs(p) })
}

// report shows errors that leave the state unchanged. Failures that move
// the workflow to Failed arrive through the snapshot instead.
func (c *controller) report(err error) {
	var stateErr *workflow.StateError
	switch {
	case err == nil,
		errors.Is(err, workflow.ErrDiscarded),
		errors.Is(err, workflow.ErrClosed),
		errors.Is(err, context.Canceled):
		return
	case errors.As(err, &stateErr),
		errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrNoCamera):
		msg := workflow.Message(err)
		c.eachSink(func(k Sink) { k.Notice(msg) })
	default:
		log.Warnf("action: %v", err)
	}
}

func (c *controller) background(fn func() error) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.report(fn())
	}()
}

// wait blocks until background actions have returned.
func (c *controller) wait() { c.bg.Wait() }

// Open acquires the camera for the live preview.
func (c *controller) Open() { c.background(c.wf.Open) }

// Toggle starts a recording while idle and stops it while recording.
func (c *controller) Toggle() {
	if c.wf.State() == workflow.Recording {
		c.background(c.wf.Stop)
		return
	}
	c.report(c.wf.Start())
}

// StopIfRecording ends a hold-to-record press.
func (c *controller) StopIfRecording() {
	if c.wf.State() == workflow.Recording {
		c.report(c.wf.Stop())
	}
}

func (c *controller) Translate() {
	c.background(func() error { return c.wf.Translate(c.ctx) })
}

// Reset discards the clip and result and reopens the camera.
func (c *controller) Reset() { c.background(c.wf.Reset) }

func (c *controller) Import(path string) {
	c.background(func() error { return c.wf.Import(path) })
}

// Copy puts the last translation on the clipboard.
func (c *controller) Copy() {
	s := c.snapshot()
	text := ""
	if s.State == workflow.Succeeded && s.Result != nil {
		text = s.Result.Text
	}
	if err := c.copier.Copy(text); err != nil {
		msg := "Copy failed: " + err.Error()
		if errors.Is(err, clipboard.ErrEmpty) {
			msg = "Nothing to copy yet."
		}
		c.eachSink(func(k Sink) { k.Notice(msg) })
		return
	}
	c.eachSink(func(k Sink) { k.Update(s) })
}

func (c *controller) Copied() bool { return c.copier.Copied() }

func (c *controller) Stats() string { return c.stats.table() }

func (c *controller) ToggleContrast() { c.savePrefs(c.settings.ToggleContrast) }
func (c *controller) IncreaseFont()   { c.savePrefs(c.settings.IncreaseFont) }
func (c *controller) DecreaseFont()   { c.savePrefs(c.settings.DecreaseFont) }
func (c *controller) ResetFont()      { c.savePrefs(c.settings.ResetFont) }

func (c *controller) savePrefs(fn func() (settings.Preferences, error)) {
	if _, err := fn(); err != nil {
		log.Warnf("saving preferences: %v", err)
	}
}
