//go:build gui

package gui

import (
	"bytes"
	"image/jpeg"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

// CameraView shows the live preview over the lens while frames arrive.
type CameraView struct {
	img *canvas.Image
}

func NewCameraView() *CameraView {
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScaleFastest
	img.Hide()
	return &CameraView{img: img}
}

// Frame decodes off the UI thread and swaps the picture in.
func (c *CameraView) Frame(data []byte) {
	im, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return
	}
	fyne.Do(func() {
		c.img.Image = im
		c.img.Show()
		c.img.Refresh()
	})
}

func (c *CameraView) Clear() {
	fyne.Do(func() {
		c.img.Image = nil
		c.img.Hide()
	})
}
