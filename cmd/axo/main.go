// axo automates interactive command-line sessions: it replays recorded jobs
// and learns new ones by observing a live session.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/oscarnevarezleal/axolotl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		var exitErr *cli.ExitCodeError
		if errors.As(err, &exitErr) {
			// The child's own failure becomes ours.
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
