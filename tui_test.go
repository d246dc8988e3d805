package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"signcap/recorder"
	"signcap/remote"
	"signcap/settings"
	"signcap/workflow"
)

type fakeActions struct {
	calls  []string
	copied bool
	stats  string
}

func (f *fakeActions) Toggle()            { f.calls = append(f.calls, "toggle") }
func (f *fakeActions) Translate()         { f.calls = append(f.calls, "translate") }
func (f *fakeActions) Reset()             { f.calls = append(f.calls, "reset") }
func (f *fakeActions) Import(path string) { f.calls = append(f.calls, "import "+path) }
func (f *fakeActions) Copy()              { f.calls = append(f.calls, "copy") }
func (f *fakeActions) Copied() bool       { return f.copied }
func (f *fakeActions) Stats() string      { return f.stats }
func (f *fakeActions) ToggleContrast()    { f.calls = append(f.calls, "contrast") }
func (f *fakeActions) IncreaseFont()      { f.calls = append(f.calls, "font+") }
func (f *fakeActions) DecreaseFont()      { f.calls = append(f.calls, "font-") }
func (f *fakeActions) ResetFont()         { f.calls = append(f.calls, "font0") }

func newTestModel(act actions) tuiModel {
	return tuiModel{act: act, maxDuration: 30 * time.Second, prefs: settings.Defaults(), width: 120, height: 40}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"hola mundo", 20, []string{"hola mundo"}},
		{"hola que tal", 8, []string{"hola que", "tal"}},
		{"canción número", 8, []string{"canción", "número"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestKeysDispatchActions(t *testing.T) {
	act := &fakeActions{}
	m := newTestModel(act)
	for _, key := range []string{" ", "enter", "n", "c", "alt+c", "alt+=", "alt+-", "alt+0"} {
		cmd := m.handleKey(key)
		if cmd == nil {
			t.Fatalf("key %q has no command", key)
		}
		cmd()
	}
	want := "toggle translate reset copy contrast font+ font- font0"
	if got := strings.Join(act.calls, " "); got != want {
		t.Errorf("calls = %q, want %q", got, want)
	}
	if m.handleKey("x") != nil {
		t.Error("unbound key returned a command")
	}
}

func TestQuitKey(t *testing.T) {
	m := newTestModel(&fakeActions{})
	cmd := m.handleKey("q")
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q does not quit")
	}
}

func TestPasteImportsPath(t *testing.T) {
	act := &fakeActions{}
	m := newTestModel(act)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("'/tmp/clip.mp4' "), Paste: true})
	if cmd == nil {
		t.Fatal("paste produced no command")
	}
	cmd()
	if len(act.calls) != 1 || act.calls[0] != "import /tmp/clip.mp4" {
		t.Errorf("calls = %q", act.calls)
	}
}

func TestElapsedOnlyWhileRecording(t *testing.T) {
	m := newTestModel(&fakeActions{})
	next, _ := m.Update(ElapsedMsg{Elapsed: time.Second})
	if next.(tuiModel).elapsed != 0 {
		t.Error("elapsed set while idle")
	}

	next, _ = next.Update(SnapshotMsg{Snapshot: workflow.Snapshot{State: workflow.Recording}})
	next, _ = next.Update(ElapsedMsg{Elapsed: 2 * time.Second})
	if got := next.(tuiModel).elapsed; got != 2*time.Second {
		t.Errorf("elapsed = %v", got)
	}
	if !strings.Contains(next.View(), "REC 2.0s / 30s") {
		t.Error("recording status missing from view")
	}

	next, _ = next.Update(SnapshotMsg{Snapshot: workflow.Snapshot{State: workflow.Recorded}})
	if next.(tuiModel).elapsed != 0 {
		t.Error("elapsed kept after recording")
	}
}

func TestViewIdleShowsTips(t *testing.T) {
	view := newTestModel(&fakeActions{}).View()
	if !strings.Contains(view, "Recording tips") {
		t.Error("idle view has no tips")
	}
}

func TestViewResult(t *testing.T) {
	act := &fakeActions{copied: true}
	m := newTestModel(act)
	conf := 0.92
	next, _ := m.Update(SnapshotMsg{Snapshot: workflow.Snapshot{
		State:  workflow.Succeeded,
		Clip:   &recorder.Clip{Data: []byte("x")},
		Result: &remote.Translation{Text: "buenos días", Confidence: &conf},
	}})
	view := next.View()
	for _, want := range []string{"buenos días", "[✓ copied]", "confidence 92%"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewFailure(t *testing.T) {
	m := newTestModel(&fakeActions{})
	next, _ := m.Update(SnapshotMsg{Snapshot: workflow.Snapshot{State: workflow.Failed, Message: "upload failed: 500 Internal Server Error"}})
	if !strings.Contains(next.View(), "upload failed: 500") {
		t.Error("failure message missing")
	}
}

func TestNoticeExpires(t *testing.T) {
	m := newTestModel(&fakeActions{})
	next, _ := m.Update(NoticeMsg{Text: "camera not ready"})
	if !strings.Contains(next.View(), "camera not ready") {
		t.Fatal("notice not shown")
	}
	mm := next.(tuiModel)
	mm.noticeAt = time.Now().Add(-2 * noticeFor)
	next, _ = mm.Update(tickMsg(time.Now()))
	if next.(tuiModel).notice != "" {
		t.Error("notice not cleared")
	}
}

func TestPrefsChangeView(t *testing.T) {
	m := newTestModel(&fakeActions{})
	next, _ := m.Update(PrefsMsg{Prefs: settings.Preferences{HighContrast: true, FontScale: 120}})
	if !strings.Contains(next.View(), "text 120% · high contrast") {
		t.Error("preference line missing")
	}
}
