package main

import (
	"fmt"
	"os"

	"github.com/agentbot-ai/agentbot/internal/cmd"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := cmd.Execute(Version); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
