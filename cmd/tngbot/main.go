// Command tngbot builds Star Trek character models from episode transcripts
// and answers chat messages with generated lines.
package main

import (
	"os"

	"github.com/MrWong99/tngbot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
