//go:build windows

package main

import "os"

var controlSignals = []os.Signal{os.Interrupt}

func signalAction(os.Signal) action {
	return actionCancel
}
