// Package cli wires the axo commands: run replays a recorded job against an
// interactive child process, learn observes a live session and records one.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbosity int

var rootCmd = &cobra.Command{
	Use:   "axo",
	Short: "Automate interactive command-line sessions",
	Long: `axo drives interactive command-line programs for you: it watches the
child's output for prompts, answers them from a recorded job file (or an
LLM when one is configured), and can learn a new job by observing you
answer once.

Running 'axo' without a subcommand is equivalent to 'axo run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		runCmd.SetOut(cmd.OutOrStdout())
		runCmd.SetErr(cmd.ErrOrStderr())
		return runCmd.RunE(runCmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(learnCmd)

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log detail (-v info, -vv debug)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger maps the -v count onto slog levels: warnings by default, info at
// -v, debug at -vv and beyond. Logs go to stderr so the child's mirrored
// output owns stdout.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
