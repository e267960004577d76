//go:build !windows

package main

import (
	"os"
	"syscall"
)

// controlSignals are forwarded to the running transfer.
var controlSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2}

// signalAction maps a received signal to a transfer control action.
func signalAction(sig os.Signal) action {
	switch sig {
	case syscall.SIGUSR1:
		return actionPause
	case syscall.SIGUSR2:
		return actionResume
	default:
		return actionCancel
	}
}
