package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"signcap/beep"
	"signcap/clipboard"
	"signcap/config"
	"signcap/hotkey"
	"signcap/log"
	"signcap/media"
	"signcap/preview"
	"signcap/recorder"
	"signcap/remote"
	"signcap/settings"
	"signcap/workflow"
)

const testWaitTimeout = 2 * time.Minute

// testSink prints state changes as plain lines for scripted runs.
type testSink struct {
	out     io.Writer
	settled chan workflow.State

	mu   sync.Mutex
	last workflow.State
	seen bool
}

func newTestSink(out io.Writer) *testSink {
	return &testSink{out: out, settled: make(chan workflow.State, 1)}
}

func (s *testSink) Update(snap workflow.Snapshot) {
	s.mu.Lock()
	changed := !s.seen || snap.State != s.last
	s.last, s.seen = snap.State, true
	s.mu.Unlock()
	if !changed {
		return
	}

	fmt.Fprintf(s.out, "state: %s\n", snap.State)
	switch snap.State {
	case workflow.Recorded:
		if c := snap.Clip; c != nil {
			fmt.Fprintf(s.out, "clip: %d bytes %s %s\n", c.Size(), c.Format, c.Source)
		}
		if snap.AutoStopped {
			fmt.Fprintln(s.out, "auto-stopped")
		}
	case workflow.Succeeded:
		if r := snap.Result; r != nil {
			fmt.Fprintf(s.out, "result: %s\t%s\n", r.Text, r.ConfidenceLabel())
		}
	case workflow.Failed:
		fmt.Fprintf(s.out, "error: %s\n", snap.Message)
	}

	if snap.State == workflow.Recorded || snap.State.Terminal() {
		select {
		case s.settled <- snap.State:
		default:
		}
	}
}

func (s *testSink) Elapsed(time.Duration)      {}
func (s *testSink) Prefs(settings.Preferences) {}
func (s *testSink) DeviceLine(string)          {}
func (s *testSink) Notice(text string)         { fmt.Fprintf(s.out, "notice: %s\n", text) }

// drain forgets a settled state nobody waited for, so the next wait
// refers to the action that follows.
func (s *testSink) drain() {
	select {
	case <-s.settled:
	default:
	}
}

// wait blocks until the next Recorded, Succeeded or Failed state.
func (s *testSink) wait(timeout time.Duration) bool {
	select {
	case <-s.settled:
		return true
	case <-time.After(timeout):
		return false
	}
}

func runTestMode(cfg *config.Config, videoPath string, hold time.Duration) int {
	beep.Disable()

	fakeCtx, err := media.NewFakeContext(videoPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading video: %v\n", err)
		return 1
	}
	prefs, err := cfg.Preference()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	store, err := settings.OpenInMemory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()
	userPrefs, err := settings.Load(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.SessionStart("fake camera", fmt.Sprint(prefs), "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := newController(ctx, userPrefs, clipboard.NewCopier())
	opts := workflow.Options{
		MinDuration:   cfg.MinDuration,
		MaxDuration:   cfg.MaxDuration,
		MaxImportSize: cfg.MaxImportSize(),
		Observer:      ctrl.observe,
	}
	pv := preview.New(cfg.PreviewAddr)
	if err := pv.Listen(); err == nil {
		opts.Previewer = pv
		go pv.Serve(ctx)
	}

	previews := &media.Previews{}
	previews.Add(newFrameMeter("camera: fake camera", func(line string) {
		ctrl.eachSink(func(k Sink) { k.DeviceLine(line) })
	}))

	wf := workflow.New(
		media.NewAcquisition(fakeCtx, nil, cfg.CaptureConfig(), previews),
		recorder.New(prefs),
		remote.NewCloudinary(cfg.UploadConfig()),
		remote.NewPredictor(cfg.InferenceConfig()),
		opts,
	)
	ctrl.attach(wf)
	defer func() {
		wf.Close()
		ctrl.wait()
		log.SessionEnd(ctrl.stats.count())
	}()

	sink := newTestSink(os.Stdout)
	ctrl.addSink(sink)

	hk := hotkey.NewFake()
	trig := hotkey.NewTrigger(hk, hold)
	defer trig.Close()
	go hotkeyLoop(ctx, trig, ctrl)

	// Stdin driver, one command per line.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		switch cmd {
		case "OPEN", "KEYDOWN", "KEYUP", "START", "STOP", "TRANSLATE", "RESET", "IMPORT":
			sink.drain()
		}
		switch cmd {
		case "OPEN":
			ctrl.report(wf.Open())
		case "KEYDOWN":
			hk.SimKeydown()
		case "KEYUP":
			hk.SimKeyup()
		case "START":
			ctrl.report(wf.Start())
		case "STOP":
			ctrl.report(wf.Stop())
		case "TRANSLATE":
			ctrl.Translate()
		case "RESET":
			ctrl.report(wf.Reset())
		case "IMPORT":
			ctrl.report(wf.Import(arg))
		case "COPY":
			ctrl.Copy()
		case "WAIT":
			if !sink.wait(testWaitTimeout) {
				fmt.Println("timeout")
				return 1
			}
		case "WAIT_FEED_DONE":
			if s := fakeCtx.LastStream(); s != nil {
				<-s.FeedDone()
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "STATE":
			fmt.Printf("state: %s\n", wf.State())
		case "QUIT":
			return 0
		case "":
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		}
	}
	return 0
}
