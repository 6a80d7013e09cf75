package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oscarnevarezleal/axolotl/internal/config"
	"github.com/oscarnevarezleal/axolotl/internal/oracle"
	"github.com/oscarnevarezleal/axolotl/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run [job]",
	Short: "Replay a recorded job against its interactive command",
	Long: `Replay a job from the job file: axo spawns the job's command, watches
its output for prompts and answers them from the recorded prompt list.
With no job argument the first job in the file is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("file", "f", config.DefaultFileName, "Path to the job file")
}

// ExitCodeError carries the child's non-zero exit status to the process
// boundary without treating it as an orchestrator failure.
type ExitCodeError struct{ Code int }

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("child exited with status %d", e.Code)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	path, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}

	file, err := config.Load(path)
	if err != nil {
		return err
	}

	var job *config.Job
	if len(args) > 0 {
		job, err = file.FindJob(args[0])
		if err != nil {
			return err
		}
	} else {
		if len(file.Jobs) == 0 {
			return fmt.Errorf("%s declares no jobs", path)
		}
		job = &file.Jobs[0]
	}

	logger.Info("running job", "id", job.ID, "command", job.Command)

	restore, err := session.RawMode(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer restore()

	// Keystroke capture only makes sense on a real terminal; in pipelines
	// unresolvable prompts degrade to blank answers instead of stalling.
	var keys io.Reader
	if term.IsTerminal(int(os.Stdin.Fd())) {
		keys = os.Stdin
	}

	s, err := session.New(session.Options{
		Item:   config.NewJobItem(job),
		Oracle: oracle.FromEnv(job.Context, logger),
		Logger: logger,
		Keys:   keys,
		Out:    cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	res, err := s.Run(cmd.Context())
	if err != nil {
		return err
	}
	restore()

	logger.Info("job finished", "id", job.ID, "exit_code", res.ExitCode)
	if res.ExitCode != 0 {
		return &ExitCodeError{Code: res.ExitCode}
	}
	return nil
}
