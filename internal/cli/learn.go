package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oscarnevarezleal/axolotl/internal/config"
	"github.com/oscarnevarezleal/axolotl/internal/oracle"
	"github.com/oscarnevarezleal/axolotl/internal/session"
	"github.com/oscarnevarezleal/axolotl/internal/transcript"
)

var learnCmd = &cobra.Command{
	Use:   "learn command [args...]",
	Short: "Observe an interactive session and record it as a replayable job",
	Long: `Run a command once, answer its prompts yourself, and axo records the
exchange as a job in the job file. Known answers can be seeded up front
with -i key=value so you are not asked for them.

Use -- to separate the observed command's own flags:

  axo learn -i projectName=demo -- npx create-widget --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().StringArrayP("input", "i", nil, "Seed answer as key=value (repeatable)")
	learnCmd.Flags().StringP("file", "f", config.DefaultFileName, "Job file to write")
}

func runLearn(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	path, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}
	inputs, err := cmd.Flags().GetStringArray("input")
	if err != nil {
		return err
	}

	seeds, err := session.SeedPrompts(inputs)
	if err != nil {
		return err
	}

	command, params := args[0], args[1:]
	job := &config.Job{
		ID:      session.DefaultJobID,
		Command: command,
		Params:  params,
		Interaction: &config.Interaction{
			Prompts: seeds,
		},
	}

	logger.Info("observing session", "command", command, "params", params)

	restore, err := session.RawMode(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer restore()

	var keys io.Reader
	if term.IsTerminal(int(os.Stdin.Fd())) {
		keys = os.Stdin
	}

	s, err := session.New(session.Options{
		Item:   config.NewJobItem(job),
		Oracle: oracle.FromEnv("", logger),
		Logger: logger,
		Keys:   keys,
		Mirror: cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	res, err := s.Run(cmd.Context())
	if err != nil {
		return err
	}
	restore()

	learned := session.BuildJob(command, params, res.History)

	file, err := config.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, config.ErrConfigNotFound):
		file = &config.File{}
	default:
		return err
	}

	replaced := false
	for i := range file.Jobs {
		if file.Jobs[i].ID == learned.ID {
			file.Jobs[i] = *learned
			replaced = true
			break
		}
	}
	if !replaced {
		file.Jobs = append(file.Jobs, *learned)
	}

	if err := config.Save(path, file); err != nil {
		return err
	}

	formatter := transcript.NewFormatter()
	if verbosity > 0 {
		fmt.Fprint(cmd.OutOrStdout(), formatter.FormatHistory(res.History))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded job %q (%s) to %s\n",
		learned.ID, formatter.Summary(res.History), path)
	return nil
}
