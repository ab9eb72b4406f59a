package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "reverse-proxy version %s\n", version)
			_, _ = fmt.Fprintf(out, "  Build time: %s\n", buildTime)
			_, _ = fmt.Fprintf(out, "  Git commit: %s\n", gitCommit)
			_, _ = fmt.Fprintf(out, "  Go version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
