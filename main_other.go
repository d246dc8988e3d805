//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// Set up crash logging early, before any CGO code runs
	initCrashLog()

	// The GUI takes the main thread itself and calls run in a goroutine.
	if hasFlag("gui") {
		initGUI()
		return
	}
	mainthread.Init(run)
}
