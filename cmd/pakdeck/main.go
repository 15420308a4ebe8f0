package main

import (
	"fmt"
	"os"

	"github.com/waabox/pakdeck/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "pakdeck: %v\n", err)
		os.Exit(1)
	}
}
