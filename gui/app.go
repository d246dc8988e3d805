//go:build gui

package gui

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/go-gl/glfw/v3.3/glfw"

	"signcap/clipboard"
	"signcap/lens"
	"signcap/recorder"
	"signcap/settings"
	"signcap/workflow"
)

const noticeFor = 4 * time.Second

// Actions is what the window can ask of the app.
type Actions interface {
	Toggle()
	Translate()
	Reset()
	Import(path string)
	Copy()
	Copied() bool
	ToggleContrast()
	IncreaseFont()
	DecreaseFont()
	ResetFont()
}

type App struct {
	fyneApp fyne.App
	window  fyne.Window
	onReady func()
	done    chan struct{}

	act         Actions
	maxDuration time.Duration

	lens       *LensWidget
	camera     *CameraView
	status     *widget.Label
	device     *widget.Label
	progress   *widget.ProgressBar
	detail     *widget.Label
	result     *widget.Label
	confidence *widget.Label
	metrics    *widget.Label
	notice     *widget.Label
	preview    *widget.Hyperlink

	recordBtn    *widget.Button
	translateBtn *widget.Button
	resetBtn     *widget.Button
	copyBtn      *widget.Button
	importBtn    *widget.Button

	mu       sync.Mutex
	snap     workflow.Snapshot
	noticeID int
}

// NewApp returns a window that calls onReady in a goroutine once it exists.
func NewApp(onReady func()) *App {
	return &App{onReady: onReady, done: make(chan struct{}), camera: NewCameraView()}
}

// Camera is the view live preview frames go to.
func (a *App) Camera() *CameraView { return a.camera }

// Bind connects the buttons to actions. It must be called before the
// first event is delivered.
func (a *App) Bind(act Actions, maxDuration time.Duration) {
	a.mu.Lock()
	a.act = act
	a.maxDuration = maxDuration
	a.mu.Unlock()
}

// Done closes when the window has been closed.
func (a *App) Done() <-chan struct{} { return a.done }

func Run(a *App) error {
	defer close(a.done)

	a.fyneApp = app.NewWithID("io.signcap.gui")
	a.fyneApp.Settings().SetTheme(newTheme(settings.Defaults()))

	if desk, ok := a.fyneApp.(desktop.App); ok {
		menu := fyne.NewMenu("signcap",
			fyne.NewMenuItem("Record / Stop", func() { a.do(func(act Actions) { act.Toggle() }) }),
			fyne.NewMenuItem("Translate", func() { a.do(func(act Actions) { act.Translate() }) }),
			fyne.NewMenuItem("Show", func() { a.window.Show() }),
		)
		desk.SetSystemTrayMenu(menu)
		desk.SetSystemTrayIcon(fyne.NewStaticResource("tray.png", trayIcon()))
	}

	a.window = a.fyneApp.NewWindow("signcap")
	a.window.SetMaster()
	a.window.SetContent(a.build())
	a.window.Resize(fyne.NewSize(720, 520))
	a.installShortcuts()
	a.window.SetOnDropped(func(_ fyne.Position, uris []fyne.URI) {
		if len(uris) > 0 {
			path := uris[0].Path()
			a.do(func(act Actions) { act.Import(path) })
		}
	})

	go a.onReady()

	a.window.ShowAndRun()
	return nil
}

func (a *App) Quit() {
	if a.fyneApp != nil {
		fyne.Do(a.fyneApp.Quit)
	}
}

// do runs fn off the UI thread; actions report back through the sink.
func (a *App) do(fn func(Actions)) {
	a.mu.Lock()
	act := a.act
	a.mu.Unlock()
	if act != nil {
		go fn(act)
	}
}

func (a *App) build() fyne.CanvasObject {
	a.lens = NewLensWidget()
	a.status = widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	a.device = widget.NewLabel("")
	a.progress = widget.NewProgressBar()
	a.progress.Hide()
	a.detail = widget.NewLabel("")
	a.detail.Wrapping = fyne.TextWrapWord
	a.result = widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	a.result.Wrapping = fyne.TextWrapWord
	a.result.SizeName = theme.SizeNameHeadingText
	a.confidence = widget.NewLabel("")
	a.metrics = widget.NewLabel("")
	a.metrics.TextStyle = fyne.TextStyle{Monospace: true}
	a.notice = widget.NewLabel("")
	a.notice.Importance = widget.WarningImportance
	a.preview = widget.NewHyperlink("", nil)
	a.preview.Hide()

	a.recordBtn = widget.NewButtonWithIcon("Record", theme.MediaRecordIcon(), func() { a.do(func(act Actions) { act.Toggle() }) })
	a.recordBtn.Importance = widget.DangerImportance
	a.translateBtn = widget.NewButtonWithIcon("Translate", theme.MailSendIcon(), func() { a.do(func(act Actions) { act.Translate() }) })
	a.translateBtn.Importance = widget.HighImportance
	a.resetBtn = widget.NewButtonWithIcon("Record another", theme.ViewRefreshIcon(), func() { a.do(func(act Actions) { act.Reset() }) })
	a.copyBtn = widget.NewButtonWithIcon("Copy", theme.ContentCopyIcon(), func() { a.do(func(act Actions) { act.Copy() }) })
	a.importBtn = widget.NewButtonWithIcon("Import video", theme.FolderOpenIcon(), a.showImport)

	buttons := container.NewHBox(a.recordBtn, a.translateBtn, a.resetBtn, a.copyBtn, a.importBtn)
	left := container.NewVBox(container.NewStack(a.lens, a.camera.img), a.status, a.device, a.progress)
	right := container.NewVBox(a.result, a.confidence, a.detail, a.preview, a.metrics, a.notice)

	a.render()
	return container.NewBorder(nil, container.NewPadded(buttons), nil, nil,
		container.NewHBox(container.NewPadded(left), container.NewPadded(right)))
}

func (a *App) installShortcuts() {
	c := a.window.Canvas()
	shortcut := func(key fyne.KeyName, fn func(Actions)) {
		c.AddShortcut(&desktop.CustomShortcut{KeyName: key, Modifier: fyne.KeyModifierAlt}, func(fyne.Shortcut) { a.do(fn) })
	}
	shortcut(fyne.KeyC, func(act Actions) { act.ToggleContrast() })
	shortcut(fyne.KeyEqual, func(act Actions) { act.IncreaseFont() })
	shortcut(fyne.KeyMinus, func(act Actions) { act.DecreaseFont() })
	shortcut(fyne.Key0, func(act Actions) { act.ResetFont() })

	c.SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeySpace:
			a.do(func(act Actions) { act.Toggle() })
		case fyne.KeyReturn, fyne.KeyEnter:
			a.do(func(act Actions) { act.Translate() })
		}
	})
}

func (a *App) showImport() {
	d := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil || r == nil {
			return
		}
		path := r.URI().Path()
		r.Close()
		a.do(func(act Actions) { act.Import(path) })
	}, a.window)
	d.SetFilter(storage.NewMimeTypeFileFilter([]string{"video/*"}))
	d.Show()
}

// Sink implementation; every widget change goes through fyne.Do.

func (a *App) Update(s workflow.Snapshot) {
	a.mu.Lock()
	a.snap = s
	a.mu.Unlock()
	fyne.Do(a.render)
	fyne.Do(func() { a.keepOnTop(s.State == workflow.Recording) })
}

func (a *App) Elapsed(d time.Duration) {
	a.mu.Lock()
	limit := a.maxDuration
	a.mu.Unlock()
	fyne.Do(func() {
		text := fmt.Sprintf("● REC %.1fs", d.Seconds())
		if limit > 0 {
			text += fmt.Sprintf(" / %.0fs", limit.Seconds())
			frac := float64(d) / float64(limit)
			a.progress.SetValue(min(frac, 1))
			a.lens.SetProgress(frac)
		}
		a.status.SetText(text)
	})
}

func (a *App) Prefs(p settings.Preferences) {
	fyne.Do(func() {
		a.fyneApp.Settings().SetTheme(newTheme(p))
		a.lens.SetHighContrast(p.HighContrast)
	})
}

func (a *App) Notice(text string) {
	a.mu.Lock()
	a.noticeID++
	id := a.noticeID
	a.mu.Unlock()
	fyne.Do(func() { a.notice.SetText(text) })
	time.AfterFunc(noticeFor, func() {
		a.mu.Lock()
		current := a.noticeID == id
		a.mu.Unlock()
		if current {
			fyne.Do(func() { a.notice.SetText("") })
		}
	})
}

func (a *App) DeviceLine(text string) {
	fyne.Do(func() { a.device.SetText(text) })
}

// keepOnTop floats the window over others while recording so the
// indicator stays visible.
func (a *App) keepOnTop(on bool) {
	w := glfw.GetCurrentContext()
	if w == nil {
		return
	}
	if on {
		w.SetAttrib(glfw.Floating, glfw.True)
	} else {
		w.SetAttrib(glfw.Floating, glfw.False)
	}
}

func (a *App) render() {
	a.mu.Lock()
	s := a.snap
	act := a.act
	limit := a.maxDuration
	a.mu.Unlock()

	a.lens.SetMode(lens.ForState(s.State))
	a.status.SetText(statusText(s, limit))
	a.progress.Hidden = s.State != workflow.Recording
	if s.State != workflow.Recording {
		a.progress.SetValue(0)
		a.lens.SetProgress(0)
	}
	a.progress.Refresh()

	a.recordBtn.SetText("Record")
	a.recordBtn.SetIcon(theme.MediaRecordIcon())
	if s.State == workflow.Recording {
		a.recordBtn.SetText("Stop")
		a.recordBtn.SetIcon(theme.MediaStopIcon())
	}
	enable(a.recordBtn, s.State == workflow.Idle && s.Live || s.State == workflow.Recording)
	enable(a.translateBtn, s.State == workflow.Recorded)
	enable(a.resetBtn, s.State == workflow.Recorded || s.State.Terminal())
	enable(a.copyBtn, s.State == workflow.Succeeded)
	enable(a.importBtn, s.State == workflow.Idle || s.State == workflow.Recorded)

	a.result.SetText("")
	a.confidence.SetText("")
	a.metrics.SetText("")
	a.preview.Hide()

	switch s.State {
	case workflow.Idle:
		a.detail.SetText("Recording tips\n• " + strings.Join(workflow.Tips, "\n• "))
	case workflow.Recording:
		a.detail.SetText("Press space or Stop when you are done.")
	case workflow.Recorded:
		a.detail.SetText(clipText(s, limit))
		if u, err := url.Parse(s.PreviewURL); err == nil && s.PreviewURL != "" {
			a.preview.SetText("Play clip")
			a.preview.SetURL(u)
			a.preview.Show()
		}
	case workflow.Uploading:
		a.detail.SetText("Uploading video...")
	case workflow.Processing:
		a.detail.SetText("Processing with AI...")
	case workflow.Succeeded:
		a.detail.SetText("")
		if r := s.Result; r != nil {
			a.result.SetText(r.Text)
			conf := ""
			if r.HasConfidence() {
				conf = "Confidence " + r.ConfidenceLabel()
			}
			if act != nil && act.Copied() {
				conf = strings.TrimSpace(conf + "  ✓ copied")
				time.AfterFunc(clipboard.CopiedFor, func() { fyne.Do(a.render) })
			}
			a.confidence.SetText(conf)
		}
		a.metrics.SetText(metricsText(s))
	case workflow.Failed:
		a.detail.SetText(s.Message)
	}
}

func enable(b *widget.Button, on bool) {
	if on {
		b.Enable()
	} else {
		b.Disable()
	}
}

func statusText(s workflow.Snapshot, limit time.Duration) string {
	switch s.State {
	case workflow.Recording:
		if limit > 0 {
			return fmt.Sprintf("● REC %.1fs / %.0fs", s.Elapsed.Seconds(), limit.Seconds())
		}
		return fmt.Sprintf("● REC %.1fs", s.Elapsed.Seconds())
	case workflow.Recorded:
		return "Clip ready"
	case workflow.Uploading:
		return "Uploading"
	case workflow.Processing:
		return "Translating"
	case workflow.Succeeded:
		return "Done"
	case workflow.Failed:
		return "Failed"
	}
	if s.Live {
		return "Camera ready"
	}
	return "Standby"
}

func clipText(s workflow.Snapshot, limit time.Duration) string {
	c := s.Clip
	if c == nil {
		return ""
	}
	kb := float64(c.Size()) / 1024
	text := fmt.Sprintf("%.1fs %s, %.0f kB", c.Duration.Seconds(), c.Format, kb)
	if c.Source == recorder.SourceFile {
		text = fmt.Sprintf("%s, %.0f kB", c.FileName(), kb)
	}
	if s.AutoStopped && limit > 0 {
		text += fmt.Sprintf("\nStopped at the %.0fs limit.", limit.Seconds())
	}
	return text
}

func metricsText(s workflow.Snapshot) string {
	var lines []string
	if s.UploadStats != nil {
		lines = append(lines, s.UploadStats.Lines("upload")...)
	}
	if s.PredictStats != nil {
		lines = append(lines, s.PredictStats.Lines("predict")...)
	}
	return strings.Join(lines, "\n")
}
