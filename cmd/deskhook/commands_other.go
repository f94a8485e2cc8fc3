//go:build !windows

package main

import (
	"fmt"
	"os"

	"github.com/1broseidon/deskhook/internal/platform"
)

func unsupported(cmd string) int {
	_, err := platform.NewNative()
	fmt.Fprintf(os.Stderr, "deskhook %s: %v\n", cmd, err)
	return 1
}

func runRun(args []string) int     { return unsupported("run") }
func runWindows(args []string) int { return unsupported("windows") }
func runIcons(args []string) int   { return unsupported("icons") }
