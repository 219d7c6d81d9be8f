//go:build windows

package cmd

import "os"

func reloadSignals() []os.Signal { return nil }
