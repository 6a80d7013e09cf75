// promptbot is an interactive fixture program used by end-to-end tests: it
// emits a scripted sequence of prompts on stdout, reads one answer line per
// prompt from stdin, and optionally echoes accepted answers back the way
// real CLI wizards do.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

func main() {
	script := flag.String("script", "Username:|Password: (admin)", "Pipe-separated prompt lines to emit")
	echo := flag.Bool("echo", true, "Echo non-empty answers back after reading them")
	delay := flag.Duration("delay", 10*time.Millisecond, "Pause before each prompt")
	exitCode := flag.Int("exit-code", 0, "Status to exit with after the script completes")
	banner := flag.String("banner", "", "Optional line to print before the first prompt")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	if *banner != "" {
		fmt.Println(*banner)
	}

	reader := bufio.NewReader(os.Stdin)

	for _, line := range strings.Split(*script, "|") {
		if line == "" {
			continue
		}
		time.Sleep(*delay)
		fmt.Println(line)

		answer, err := reader.ReadString('\n')
		if err != nil {
			logger.Warn("stdin closed before script completed", "error", err)
			os.Exit(1)
		}
		answer = strings.TrimRight(answer, "\r\n")

		if *echo && answer != "" {
			fmt.Printf("%s %s\n", line, answer)
		}
	}

	os.Exit(*exitCode)
}
