package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"signcap/lens"
	"signcap/recorder"
	"signcap/settings"
	"signcap/workflow"
)

// TUI message types
type SnapshotMsg struct{ Snapshot workflow.Snapshot }
type ElapsedMsg struct{ Elapsed time.Duration }
type PrefsMsg struct{ Prefs settings.Preferences }
type NoticeMsg struct{ Text string }
type DeviceLineMsg struct{ Text string }
type tickMsg time.Time

const noticeFor = 4 * time.Second

// actions is what the TUI can ask of the app.
type actions interface {
	Toggle()
	Translate()
	Reset()
	Import(path string)
	Copy()
	Copied() bool
	Stats() string
	ToggleContrast()
	IncreaseFont()
	DecreaseFont()
	ResetFont()
}

type tuiModel struct {
	act         actions
	maxDuration time.Duration

	snap          workflow.Snapshot
	elapsed       time.Duration
	prefs         settings.Preferences
	deviceLine    string
	notice        string
	noticeAt      time.Time
	frame         int
	width, height int
}

// tuiSink forwards workflow events into the Bubble Tea program.
type tuiSink struct{ p *tea.Program }

func (s tuiSink) Update(snap workflow.Snapshot) { s.p.Send(SnapshotMsg{Snapshot: snap}) }
func (s tuiSink) Elapsed(d time.Duration)       { s.p.Send(ElapsedMsg{Elapsed: d}) }
func (s tuiSink) Prefs(p settings.Preferences)  { s.p.Send(PrefsMsg{Prefs: p}) }
func (s tuiSink) Notice(text string)            { s.p.Send(NoticeMsg{Text: text}) }
func (s tuiSink) DeviceLine(text string)        { s.p.Send(DeviceLineMsg{Text: text}) }

func NewTUIProgram(act actions, maxDuration time.Duration) *tea.Program {
	m := tuiModel{act: act, maxDuration: maxDuration, prefs: settings.Defaults()}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// do runs fn off the event loop; actions send their results back through
// the sink, which would block if called from Update.
func do(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.Paste {
			path := strings.Trim(strings.TrimSpace(string(msg.Runes)), `'"`)
			if path != "" {
				return m, do(func() { m.act.Import(path) })
			}
			return m, nil
		}
		return m, m.handleKey(msg.String())

	case tickMsg:
		m.frame++
		if m.notice != "" && time.Since(m.noticeAt) > noticeFor {
			m.notice = ""
		}
		return m, tuiTick()

	case SnapshotMsg:
		if msg.Snapshot.State != workflow.Recording {
			m.elapsed = 0
		}
		m.snap = msg.Snapshot

	case ElapsedMsg:
		if m.snap.State == workflow.Recording {
			m.elapsed = msg.Elapsed
		}

	case PrefsMsg:
		m.prefs = msg.Prefs

	case NoticeMsg:
		m.notice = msg.Text
		m.noticeAt = time.Now()

	case DeviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) handleKey(key string) tea.Cmd {
	switch key {
	case "ctrl+c", "q":
		return tea.Quit
	case " ":
		return do(m.act.Toggle)
	case "enter":
		return do(m.act.Translate)
	case "n":
		return do(m.act.Reset)
	case "c":
		return do(m.act.Copy)
	case "alt+c":
		return do(m.act.ToggleContrast)
	case "alt+=", "alt++":
		return do(m.act.IncreaseFont)
	case "alt+-":
		return do(m.act.DecreaseFont)
	case "alt+0":
		return do(m.act.ResetFont)
	}
	return nil
}

type tuiStyles struct {
	status  lipgloss.Style
	rec     lipgloss.Style
	dim     lipgloss.Style
	text    lipgloss.Style
	title   lipgloss.Style
	ok      lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	help    lipgloss.Style
	helpKey lipgloss.Style
}

func newTUIStyles(p settings.Preferences) tuiStyles {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	if p.HighContrast {
		white := fg("231").Bold(true)
		yellow := fg("226").Bold(true)
		return tuiStyles{
			status:  white,
			rec:     lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("196")).Bold(true),
			dim:     fg("231"),
			text:    white,
			title:   yellow,
			ok:      yellow,
			err:     lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("196")).Bold(true),
			warn:    yellow,
			help:    fg("231"),
			helpKey: yellow,
		}
	}
	s := tuiStyles{
		status:  fg("241"),
		rec:     fg("196").Bold(true),
		dim:     fg("243"),
		text:    fg("4"),
		title:   fg("246"),
		ok:      fg("42"),
		err:     fg("196"),
		warn:    fg("208"),
		help:    fg("239"),
		helpKey: fg("239").Bold(true),
	}
	if p.FontScale > settings.DefaultFontScale {
		s.text = s.text.Bold(true)
	}
	return s
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m tuiModel) statusLine(st tuiStyles) string {
	s := m.snap
	spin := spinnerFrames[(m.frame/2)%len(spinnerFrames)]
	switch s.State {
	case workflow.Recording:
		line := fmt.Sprintf("● REC %.1fs", m.elapsed.Seconds())
		if m.maxDuration > 0 {
			line += fmt.Sprintf(" / %.0fs", m.maxDuration.Seconds())
		}
		return st.rec.Render(line)
	case workflow.Recorded:
		return st.ok.Render("■ CLIP READY")
	case workflow.Uploading:
		return st.warn.Render(spin + " UPLOADING")
	case workflow.Processing:
		return st.warn.Render(spin + " TRANSLATING")
	case workflow.Succeeded:
		return st.ok.Render("✓ DONE")
	case workflow.Failed:
		return st.err.Render("✗ FAILED")
	}
	if s.Live {
		return st.status.Render("○ CAMERA READY")
	}
	return st.status.Render("○ STANDBY")
}

func (m tuiModel) progress() float64 {
	if m.maxDuration <= 0 {
		return 0
	}
	return float64(m.elapsed) / float64(m.maxDuration)
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const lensWidth = lens.Width + 1
	st := newTUIStyles(m.prefs)

	left := renderLens(m.frame, lens.ForState(m.snap.State), m.progress(), m.prefs.HighContrast)

	var info []string
	info = append(info, m.statusLine(st))
	if m.deviceLine != "" {
		info = append(info, st.status.Render(m.deviceLine))
	}
	info = append(info, st.status.Render(fmt.Sprintf("text %d%%%s", m.prefs.FontScale, contrastLabel(m.prefs))))

	if table := m.act.Stats(); table != "" {
		info = append(info, "")
		for _, line := range strings.Split(table, "\n") {
			info = append(info, st.dim.Render(line))
		}
	}

	info = append(info, "")
	info = append(info, st.helpKey.Render("Ctrl+Shift+Space")+st.help.Render(" or space to record"))
	info = append(info, st.helpKey.Render("enter")+st.help.Render(" translate  ")+st.helpKey.Render("n")+st.help.Render(" new  ")+st.helpKey.Render("c")+st.help.Render(" copy"))
	info = append(info, st.helpKey.Render("alt+c")+st.help.Render(" contrast  ")+st.helpKey.Render("alt+=/-/0")+st.help.Render(" text size"))
	info = append(info, st.help.Render("drop a video file here to import"))
	info = append(info, st.help.Render("signcap "+version))

	for _, line := range info {
		left += line + "\n"
	}
	leftLines := strings.Split(left, "\n")

	rightWidth := max(m.width-lensWidth, 20)
	wrapWidth := max(rightWidth-2, 10)
	if m.prefs.FontScale > settings.DefaultFontScale {
		wrapWidth = max(wrapWidth*settings.DefaultFontScale/m.prefs.FontScale, 10)
	}

	var right strings.Builder
	m.renderContent(&right, st, wrapWidth)
	if m.notice != "" {
		right.WriteString("\n" + st.warn.Render(m.notice) + "\n")
	}

	rightPanel := lipgloss.NewStyle().
		Width(rightWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(right.String())

	padded := make([]string, m.height)
	for i := range padded {
		if i < len(leftLines) {
			padded[i] = leftLines[i]
		} else {
			padded[i] = strings.Repeat(" ", lensWidth-1)
		}
	}
	leftPanel := lipgloss.NewStyle().
		Width(lensWidth - 1).
		Height(m.height).
		Render(strings.Join(padded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func contrastLabel(p settings.Preferences) string {
	if p.HighContrast {
		return " · high contrast"
	}
	return ""
}

func (m tuiModel) renderContent(b *strings.Builder, st tuiStyles, width int) {
	s := m.snap
	writeWrapped := func(style lipgloss.Style, text string) {
		for _, line := range wrapText(text, width) {
			b.WriteString(style.Render(line) + "\n")
		}
	}

	switch s.State {
	case workflow.Idle:
		b.WriteString(st.title.Render("Recording tips") + "\n\n")
		for _, tip := range workflow.Tips {
			writeWrapped(st.dim, "• "+tip)
		}

	case workflow.Recording:
		b.WriteString(st.title.Render("Recording") + "\n\n")
		if m.maxDuration > 0 {
			b.WriteString(st.rec.Render(progressBar(m.progress(), min(width, 40))) + "\n\n")
		}
		b.WriteString(st.dim.Render("space to stop") + "\n")

	case workflow.Recorded:
		b.WriteString(st.title.Render("Clip") + "\n\n")
		if c := s.Clip; c != nil {
			b.WriteString(st.text.Render(clipSummary(c)) + "\n")
		}
		if s.AutoStopped && m.maxDuration > 0 {
			b.WriteString(st.warn.Render(fmt.Sprintf("Stopped at the %.0fs limit", m.maxDuration.Seconds())) + "\n")
		}
		if s.PreviewURL != "" {
			b.WriteString(st.dim.Render("play: "+s.PreviewURL) + "\n")
		}
		b.WriteString("\n" + st.dim.Render("enter to translate, n to record again") + "\n")

	case workflow.Uploading:
		b.WriteString(st.title.Render("Uploading video...") + "\n")

	case workflow.Processing:
		b.WriteString(st.title.Render("Processing with AI...") + "\n")
		if s.RemoteURL != "" {
			b.WriteString(st.dim.Render(s.RemoteURL) + "\n")
		}

	case workflow.Succeeded:
		b.WriteString(st.title.Render("Translation") + "\n\n")
		if r := s.Result; r != nil {
			lines := wrapText(r.Text, width)
			for i, line := range lines {
				b.WriteString(st.text.Render(line))
				if i == len(lines)-1 && m.act.Copied() {
					b.WriteString(" " + st.ok.Render("[✓ copied]"))
				}
				b.WriteString("\n")
				if m.prefs.FontScale >= 130 {
					b.WriteString("\n")
				}
			}
			if r.HasConfidence() {
				b.WriteString(st.dim.Render("confidence "+r.ConfidenceLabel()) + "\n")
			}
		}
		if metrics := metricLines(s); len(metrics) > 0 {
			b.WriteString("\n")
			for _, line := range metrics {
				b.WriteString(st.dim.Render(line) + "\n")
			}
		}
		b.WriteString("\n" + st.dim.Render("c to copy, n to record another") + "\n")

	case workflow.Failed:
		b.WriteString(st.title.Render("Something went wrong") + "\n\n")
		writeWrapped(st.err, s.Message)
		b.WriteString("\n" + st.dim.Render("n to try again") + "\n")
	}
}

func clipSummary(c *recorder.Clip) string {
	kb := float64(c.Size()) / 1024
	if c.Source == recorder.SourceFile {
		return fmt.Sprintf("%s, %.0f kB", c.FileName(), kb)
	}
	return fmt.Sprintf("%.1fs %s, %.0f kB", c.Duration.Seconds(), c.Format, kb)
}

func progressBar(frac float64, width int) string {
	frac = min(max(frac, 0), 1)
	filled := int(frac * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

var (
	lensStyleMu sync.Mutex
	lensStyles  = map[[2]string]lipgloss.Style{}
)

func lensStyle(fg, bg string) lipgloss.Style {
	lensStyleMu.Lock()
	defer lensStyleMu.Unlock()
	key := [2]string{fg, bg}
	s, ok := lensStyles[key]
	if !ok {
		s = lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
		if bg != "" {
			s = s.Background(lipgloss.Color(bg))
		}
		lensStyles[key] = s
	}
	return s
}

func renderLens(frame int, mode lens.Mode, progress float64, highContrast bool) string {
	pal := lens.PaletteFor(mode, highContrast)
	var result strings.Builder
	lens.Cells(lens.Pixels(frame, mode, progress), func(x, y, top, bot int) {
		switch {
		case top == 0 && bot == 0:
			result.WriteString(" ")
		case top == bot:
			result.WriteString(lensStyle(pal[top], "").Render("█"))
		case bot == 0:
			result.WriteString(lensStyle(pal[top], "").Render("▀"))
		case top == 0:
			result.WriteString(lensStyle(pal[bot], "").Render("▄"))
		default:
			result.WriteString(lensStyle(pal[top], pal[bot]).Render("▀"))
		}
		if x == lens.Width-1 {
			result.WriteString("\n")
		}
	})
	return result.String()
}

// wrapText breaks text at spaces so no line exceeds width runes.
func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	runes := []rune(text)
	for len(runes) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
