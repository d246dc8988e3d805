// Package lens draws the camera lens shown next to the status line. The
// grid is shared by the terminal and desktop front ends; each paints the
// palette indexes with its own primitives.
package lens

import (
	"image/color"
	"math"
	"strconv"

	"signcap/workflow"
)

const (
	Width       = 44
	Height      = 15 // rows of half-block characters
	PixelHeight = Height * 2
)

type Mode int

const (
	Idle Mode = iota
	Recording
	Working
	Done
	Failed
)

// Palette maps the pixel indexes returned by Pixels to xterm-256 colors.
// Index 0 is the background.
type Palette [16]string

var (
	idlePalette = Palette{"", "231", "224", "217", "210", "160", "124", "88", "52", "236", "236", "236", "236", "236", "255", "249"}
	recPalette  = Palette{"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"}
	workPalette = Palette{"", "195", "159", "123", "87", "45", "39", "33", "25", "17", "236", "236", "236", "236", "255", "249"}
	donePalette = Palette{"", "194", "157", "120", "83", "46", "40", "34", "28", "22", "236", "236", "236", "236", "255", "249"}
	failPalette = Palette{"", "224", "217", "210", "203", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"}

	// High contrast uses three colors only.
	contrastPalette = Palette{"", "226", "226", "226", "231", "231", "231", "231", "231", "231", "16", "16", "16", "16", "226", "226"}
	contrastRec     = Palette{"", "231", "231", "231", "196", "196", "196", "196", "196", "196", "16", "16", "16", "16", "231", "231"}
)

func ForState(s workflow.State) Mode {
	switch s {
	case workflow.Recording:
		return Recording
	case workflow.Uploading, workflow.Processing:
		return Working
	case workflow.Succeeded:
		return Done
	case workflow.Failed:
		return Failed
	}
	return Idle
}

func PaletteFor(m Mode, highContrast bool) Palette {
	if highContrast {
		if m == Recording || m == Failed {
			return contrastRec
		}
		return contrastPalette
	}
	switch m {
	case Recording:
		return recPalette
	case Working:
		return workPalette
	case Done:
		return donePalette
	case Failed:
		return failPalette
	}
	return idlePalette
}

// RGB converts an xterm-256 color code to RGB. Invalid codes are black.
func RGB(code string) color.RGBA {
	n, err := strconv.Atoi(code)
	if err != nil || n < 0 || n > 255 {
		return color.RGBA{0, 0, 0, 255}
	}
	switch {
	case n < 16:
		return basic[n]
	case n < 232:
		n -= 16
		return color.RGBA{cube[n/36], cube[(n/6)%6], cube[n%6], 255}
	default:
		g := uint8(8 + (n-232)*10)
		return color.RGBA{g, g, g, 255}
	}
}

var cube = [6]uint8{0, 95, 135, 175, 215, 255}

var basic = [16]color.RGBA{
	{0, 0, 0, 255}, {128, 0, 0, 255}, {0, 128, 0, 255}, {128, 128, 0, 255},
	{0, 0, 128, 255}, {128, 0, 128, 255}, {0, 128, 128, 255}, {192, 192, 192, 255},
	{128, 128, 128, 255}, {255, 0, 0, 255}, {0, 255, 0, 255}, {255, 255, 0, 255},
	{0, 0, 255, 255}, {255, 0, 255, 255}, {0, 255, 255, 255}, {255, 255, 255, 255},
}

type ring struct {
	radius     float64
	breatheAmt float64
	colorIdx   int
}

var rings = []ring{
	{0.6, 0.10, 1},
	{1.3, 0.12, 2},
	{2.0, 0.15, 3},
	{2.8, 0.35, 4},
	{3.5, 0.40, 5},
	{4.2, 0.38, 6},
	{5.0, 0.30, 7},
	{5.8, 0.15, 8},
	{6.5, 0.03, 9},
	{7.2, 0.0, 10},
	{8.0, 0.0, 11},
	{10.0, 0.0, 12},
	{12.0, 0.0, 13},
}

type spot struct {
	ox, oy float64
	radius float64
	color  int
}

var spots = []spot{
	{-9.0 * 0.707, -9.0 * 0.707, 0.7, 14},
	{-7.2 * 0.707, -7.2 * 0.707, 0.4, 15},
	{0, -10.0, 0.8, 14},
	{0, -8.2, 0.6, 15},
	{9.0 * 0.707, -9.0 * 0.707, 0.7, 14},
	{7.2 * 0.707, -7.2 * 0.707, 0.4, 15},
	{0, -2.0, 0.6, 14},
}

// Pixels returns a PixelHeight x Width grid of palette indexes. progress
// is the recorded fraction of the maximum duration and widens the iris
// while recording.
func Pixels(frame int, m Mode, progress float64) [][]int {
	centerX := float64(Width) / 2
	centerY := float64(PixelHeight) / 2

	var breathe float64
	switch m {
	case Recording:
		breathe = math.Sin(float64(frame)*0.15)*0.04 + min(max(progress, 0), 1)*0.5 - 0.05
	case Working:
		breathe = math.Sin(float64(frame)*0.30) * 0.08
	default:
		breathe = math.Sin(float64(frame)*0.08)*0.02 - 0.05
	}

	pixels := make([][]int, PixelHeight)
	for i := range pixels {
		pixels[i] = make([]int, Width)
	}

	for y := 0; y < PixelHeight; y++ {
		for x := 0; x < Width; x++ {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx + dy*dy)
			for _, r := range rings {
				radius := min(r.radius+breathe*r.breatheAmt*20, 10.0)
				if dist < radius {
					pixels[y][x] = r.colorIdx
					break
				}
			}
		}
	}

	// Glass reflections
	for y := 0; y < PixelHeight; y++ {
		for x := 0; x < Width; x++ {
			px := float64(x) - centerX
			py := float64(y) - centerY
			for _, s := range spots {
				dx := px - s.ox
				dy := py - s.oy
				rLen := math.Sqrt(s.ox*s.ox + s.oy*s.oy)
				if rLen < 0.001 {
					rLen = 1
				}
				tx, ty := -s.oy/rLen, s.ox/rLen
				dt := dx*tx + dy*ty
				dn := dx*(-ty) + dy*tx
				if (dt*dt)/9.0+dn*dn < s.radius*s.radius {
					pixels[y][x] = s.color
				}
			}
		}
	}
	return pixels
}

// Cells pairs pixel rows into character rows: cell (x, y) shows pixel
// rows 2y on top and 2y+1 at the bottom.
func Cells(pixels [][]int, fn func(x, y, top, bot int)) {
	for cy := 0; cy < Height; cy++ {
		for cx := 0; cx < Width; cx++ {
			fn(cx, cy, pixels[cy*2][cx], pixels[cy*2+1][cx])
		}
	}
}
