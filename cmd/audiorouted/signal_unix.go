//go:build unix

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

func init() {
	interruptSignals = []os.Signal{os.Interrupt, unix.SIGTERM}
}
