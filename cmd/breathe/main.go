// Package main is the entrypoint for the breathe binary.
package main

import "github.com/breathe-app/breathe/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
