//go:build gui

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"signcap/gui"
	"signcap/media"
)

var guiApp *gui.App

func initGUI() {
	guiMode = true

	// Fyne and GLFW must own the main thread.
	runtime.LockOSThread()

	guiApp = gui.NewApp(run)
	if err := gui.Run(guiApp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
	}
}

// startGUI binds the window to the controller and returns when the window
// closes or ctx is done.
func startGUI(ctx context.Context, c *controller, maxDuration time.Duration, previews *media.Previews) error {
	guiApp.Bind(c, maxDuration)
	previews.Add(guiApp.Camera())
	c.addSink(guiApp)
	select {
	case <-guiApp.Done():
	case <-ctx.Done():
		guiApp.Quit()
	}
	return nil
}
