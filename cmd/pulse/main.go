// Command pulse is the autonomous DevOps supervisor CLI.
package main

import (
	"os"

	"github.com/relaytrain/pulse/internal/cmd"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.SetVersion(version)
	os.Exit(cmd.Execute())
}
