package main

import (
	"os"

	"videograb/internal/cli"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "0.1.0"

func main() {
	os.Exit(cli.Execute(Version))
}
