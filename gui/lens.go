//go:build gui

package gui

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"signcap/lens"
)

// LensWidget paints the lens grid with one rectangle per half-block cell.
type LensWidget struct {
	widget.BaseWidget

	mu           sync.Mutex
	frame        int
	mode         lens.Mode
	progress     float64
	highContrast bool
	stopCh       chan struct{}
}

func NewLensWidget() *LensWidget {
	l := &LensWidget{stopCh: make(chan struct{})}
	l.ExtendBaseWidget(l)
	go l.animate()
	return l
}

func (l *LensWidget) SetMode(m lens.Mode) {
	l.mu.Lock()
	l.mode = m
	l.mu.Unlock()
}

// SetProgress is the recorded fraction of the duration limit.
func (l *LensWidget) SetProgress(p float64) {
	l.mu.Lock()
	l.progress = p
	l.mu.Unlock()
}

func (l *LensWidget) SetHighContrast(on bool) {
	l.mu.Lock()
	l.highContrast = on
	l.mu.Unlock()
}

func (l *LensWidget) Stop() {
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
}

func (l *LensWidget) animate() {
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.frame++
			l.mu.Unlock()
			fyne.Do(l.Refresh)
		}
	}
}

func (l *LensWidget) MinSize() fyne.Size {
	return fyne.NewSize(float32(lens.Width*6), float32(lens.Height*12))
}

func (l *LensWidget) CreateRenderer() fyne.WidgetRenderer {
	r := &lensRenderer{lens: l}
	r.rects = make([][]*canvas.Rectangle, lens.Height)
	for y := range r.rects {
		r.rects[y] = make([]*canvas.Rectangle, lens.Width)
		for x := range r.rects[y] {
			r.rects[y][x] = canvas.NewRectangle(color.Black)
		}
	}
	return r
}

type lensRenderer struct {
	lens  *LensWidget
	rects [][]*canvas.Rectangle
}

func (r *lensRenderer) Layout(size fyne.Size) {
	cellW := size.Width / float32(lens.Width)
	cellH := size.Height / float32(lens.Height)
	for y, row := range r.rects {
		for x, rect := range row {
			rect.Move(fyne.NewPos(float32(x)*cellW, float32(y)*cellH))
			rect.Resize(fyne.NewSize(cellW, cellH))
		}
	}
}

func (r *lensRenderer) MinSize() fyne.Size { return r.lens.MinSize() }

func (r *lensRenderer) Refresh() {
	r.lens.mu.Lock()
	frame, mode, progress, hc := r.lens.frame, r.lens.mode, r.lens.progress, r.lens.highContrast
	r.lens.mu.Unlock()

	palette := lens.PaletteFor(mode, hc)
	lens.Cells(lens.Pixels(frame, mode, progress), func(x, y, top, bot int) {
		rect := r.rects[y][x]
		rect.FillColor = blendColors(lens.RGB(palette[top]), lens.RGB(palette[bot]))
		rect.Refresh()
	})
}

// blendColors averages the two half pixels of a cell.
func blendColors(top, bot color.RGBA) color.Color {
	return color.RGBA{
		R: uint8((uint16(top.R) + uint16(bot.R)) / 2),
		G: uint8((uint16(top.G) + uint16(bot.G)) / 2),
		B: uint8((uint16(top.B) + uint16(bot.B)) / 2),
		A: 255,
	}
}

func (r *lensRenderer) Objects() []fyne.CanvasObject {
	objs := make([]fyne.CanvasObject, 0, lens.Width*lens.Height)
	for _, row := range r.rects {
		for _, rect := range row {
			objs = append(objs, rect)
		}
	}
	return objs
}

func (r *lensRenderer) Destroy() { r.lens.Stop() }
