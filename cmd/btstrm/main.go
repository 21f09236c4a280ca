package main

import (
	"os"

	"btstrm/internal/cli"
)

func main() {
	os.Exit(cli.ExitCode(cli.Execute()))
}
