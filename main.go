package main

import (
	"fmt"
	"os"

	"github.com/tphakala/livecaption/cmd"
	"github.com/tphakala/livecaption/internal/buildinfo"
	"github.com/tphakala/livecaption/internal/conf"
)

// set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings, buildinfo.NewContext(version, buildDate))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
