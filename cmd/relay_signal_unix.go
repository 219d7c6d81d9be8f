//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// reloadSignals are the signals that force an alias reload.
func reloadSignals() []os.Signal { return []os.Signal{syscall.SIGUSR2} }
