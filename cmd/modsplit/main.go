package main

import (
	"os"

	"modsplit/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
