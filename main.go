package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"signcap/beep"
	"signcap/clipboard"
	"signcap/config"
	"signcap/doctor"
	"signcap/hotkey"
	"signcap/log"
	"signcap/media"
	"signcap/preview"
	"signcap/recorder"
	"signcap/remote"
	"signcap/settings"
	"signcap/shutdown"
	"signcap/workflow"
)

var version = "dev"

var guiMode bool

// runDone closes when run has cleaned up, so the GUI can wait for it
// after its window closes.
var runDone = make(chan struct{})

// initCrashLog sends fatal runtime errors to crash_log.txt. It runs before
// flag parsing, so -logpath is read from the raw arguments.
func initCrashLog() {
	dir, err := log.ResolveDir(argValue("logpath"))
	if err != nil {
		return
	}
	log.SetDir(dir)
	if err := log.EnsureDir(); err != nil {
		return
	}
	crashFile, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// argValue returns the value of -name from the raw arguments.
func argValue(name string) string {
	args := os.Args[1:]
	for i, a := range args {
		if !strings.HasPrefix(a, "-") {
			continue
		}
		a = strings.TrimLeft(a, "-")
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v
		}
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func hasFlag(name string) bool {
	for _, a := range os.Args[1:] {
		if !strings.HasPrefix(a, "-") {
			continue
		}
		a = strings.TrimLeft(a, "-")
		if a == name || a == name+"=true" {
			return true
		}
	}
	return false
}

func deviceLineText(dev *media.DeviceInfo) string {
	name := "first available"
	if dev != nil {
		name = dev.Name
	}
	return "camera: " + name
}

func hotkeyLoop(ctx context.Context, trig *hotkey.Trigger, c *controller) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-trig.Events():
			switch ev.Kind {
			case hotkey.Pressed:
				log.Info("hotkey_down")
				c.Toggle()
			case hotkey.HeldReleased:
				log.Info(fmt.Sprintf("hotkey_held_release %dms", ev.Held.Milliseconds()))
				c.StopIfRecording()
			}
		}
	}
}

func fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Error(msg)
	log.Close()
	fmt.Fprintln(os.Stderr, "Error: "+msg)
	os.Exit(1)
}

func run() {
	defer close(runDone)

	configFlag := flag.String("config", "", "Config file (default: ./signcap.yaml, then the settings directory)")
	envFlag := flag.String("env", ".env", "Dotenv file with SIGNCAP_* overrides")
	deviceFlag := flag.String("device", "", "Use named camera")
	setupFlag := flag.Bool("setup", false, "Select camera interactively")
	fileFlag := flag.String("file", "", "Translate an existing video file instead of recording")
	previewFlag := flag.String("preview", "", "Address for the local clip preview server")
	longPressFlag := flag.Duration("longpress", 350*time.Millisecond, "Hold the hotkey this long to record only while held")
	noBeepFlag := flag.Bool("nobeep", false, "Disable sound cues")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	doctorFlag := flag.Bool("doctor", false, "Check hotkey, camera, services and clipboard, then exit")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven, replays the given video as the camera)")
	flag.Bool("gui", false, "Run with the desktop window (requires a build with -tags gui)")
	flag.Parse()

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("signcap %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: *configFlag, EnvFile: *envFlag})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *deviceFlag != "" {
		cfg.Device = *deviceFlag
	}
	if *previewFlag != "" {
		cfg.PreviewAddr = *previewFlag
	}
	if *noBeepFlag {
		beep.Disable()
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	if *doctorFlag {
		ctx, stop := shutdown.Context(context.Background())
		code := doctor.Run(ctx, cfg, os.Stdout)
		stop()
		log.Close()
		os.Exit(code)
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: signcap -test <video-file>")
			os.Exit(1)
		}
		code := runTestMode(cfg, args[0], *longPressFlag)
		log.Close()
		os.Exit(code)
	}

	prefs, err := cfg.Preference()
	if err != nil {
		fatal("%v", err)
	}

	mctx, err := media.NewContext(cfg.FFmpeg)
	if err != nil {
		fatal("initializing camera backend: %v", err)
	}
	defer mctx.Close()

	var device *media.DeviceInfo
	switch {
	case *setupFlag:
		device, err = media.SelectDevice(mctx)
		if err != nil {
			fatal("camera selection failed: %v", err)
		}
		if device == nil {
			os.Exit(0)
		}
	case cfg.Device != "":
		device, err = media.FindDevice(mctx, cfg.Device)
		if err != nil {
			log.Warnf("%v, using the first camera", err)
		}
	}

	store, err := settings.Open(cfg.SettingsDir)
	if err != nil {
		fatal("opening settings: %v", err)
	}
	defer store.Close()
	userPrefs, err := settings.Load(store)
	if err != nil {
		fatal("loading settings: %v", err)
	}

	mode := "tui"
	if guiMode {
		mode = "gui"
	}
	log.SessionStart(deviceLineText(device), fmt.Sprint(prefs), mode)

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	ctrl := newController(ctx, userPrefs, clipboard.NewCopier())

	opts := workflow.Options{
		MinDuration:   cfg.MinDuration,
		MaxDuration:   cfg.MaxDuration,
		MaxImportSize: cfg.MaxImportSize(),
		Observer:      ctrl.observe,
	}
	pv := preview.New(cfg.PreviewAddr)
	previewing := true
	if err := pv.Listen(); err != nil {
		log.Warnf("clip preview disabled: %v", err)
		previewing = false
	} else {
		opts.Previewer = pv
	}

	previews := &media.Previews{}
	previews.Add(newFrameMeter(deviceLineText(device), func(line string) {
		ctrl.eachSink(func(k Sink) { k.DeviceLine(line) })
	}))

	wf := workflow.New(
		media.NewAcquisition(mctx, device, cfg.CaptureConfig(), previews),
		recorder.New(prefs),
		remote.NewCloudinary(cfg.UploadConfig()),
		remote.NewPredictor(cfg.InferenceConfig()),
		opts,
	)
	ctrl.attach(wf)

	g, gctx := errgroup.WithContext(ctx)
	if previewing {
		g.Go(func() error { return pv.Serve(gctx) })
	}

	go beep.Init()

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Warnf("hotkey register error: %v", err)
	} else {
		trig := hotkey.NewTrigger(hk, *longPressFlag)
		defer hk.Unregister()
		defer trig.Close()
		g.Go(func() error { return hotkeyLoop(gctx, trig, ctrl) })
	}

	if guiMode {
		g.Go(func() error {
			err := startGUI(gctx, ctrl, cfg.MaxDuration, previews)
			stop()
			return err
		})
	} else {
		program := NewTUIProgram(ctrl, cfg.MaxDuration)
		g.Go(func() error {
			_, err := program.Run()
			stop()
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			program.Quit()
			return nil
		})
		ctrl.addSink(tuiSink{p: program})
	}
	ctrl.eachSink(func(k Sink) { k.DeviceLine(deviceLineText(device)) })

	if *fileFlag != "" {
		ctrl.Import(*fileFlag)
	} else {
		ctrl.Open()
	}

	err = g.Wait()
	wf.Close()
	ctrl.wait()
	log.SessionEnd(ctrl.stats.count())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("exit: %v", err)
		log.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Close()
}
