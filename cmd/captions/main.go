// Package main provides the captions terminal client.
//
// Usage:
//
//	captions [flags]                  live captions TUI
//	captions languages                print the language catalog
//	captions worker start|stop|state  control the transcription worker
//	captions config                   print the effective configuration
//
// Configuration is read from <user config dir>/captions/config.yaml and
// CAPTIONS_* environment variables; flags override both.
package main

import (
	"fmt"
	"os"

	"github.com/VlasiukRV/realtime-transcription/cmd/captions/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
