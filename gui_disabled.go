//go:build !gui

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"signcap/media"
)

func initGUI() {
	fmt.Fprintln(os.Stderr, "signcap: built without GUI support (rebuild with -tags gui)")
	os.Exit(1)
}

func startGUI(context.Context, *controller, time.Duration, *media.Previews) error {
	return errors.New("built without GUI support")
}
