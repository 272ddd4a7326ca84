package main

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Version information, overridable with -ldflags.
var (
	version   = "dev"
	gitCommit = ""
	buildDate = ""
)

// GetVersion returns the module version, or "dev" for local builds.
func GetVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

// GetVersionInfo returns the version with commit and build date when known.
func GetVersionInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "livecoach version %s", GetVersion())
	if gitCommit != "" {
		fmt.Fprintf(&b, "\ncommit: %s", gitCommit)
	}
	if buildDate != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", buildDate)
	}
	return b.String()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), GetVersionInfo())
		},
	}
}
