// Command hikmara runs the knowledge ingestion daemon and its CLI.
package main

import (
	"os"

	"github.com/oho/hikmara/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
