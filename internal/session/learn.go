package session

import (
	"fmt"
	"strings"

	"github.com/oscarnevarezleal/axolotl/internal/config"
	"github.com/oscarnevarezleal/axolotl/internal/framer"
	"github.com/oscarnevarezleal/axolotl/internal/prompt"
	"github.com/oscarnevarezleal/axolotl/internal/timeline"
)

// DefaultJobID names jobs produced by an observation session.
const DefaultJobID = "axo"

// SeedPrompts turns learn-mode "key=value" input pairs into scripted prompt
// specs consumed by the dispatcher the same way replay prompts are.
func SeedPrompts(inputs []string) ([]config.PromptSpec, error) {
	specs := make([]config.PromptSpec, 0, len(inputs))
	for _, in := range inputs {
		key, value, ok := strings.Cut(in, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("input %q is not of the form key=value", in)
		}
		v := value
		specs = append(specs, config.PromptSpec{Name: key, Value: &v})
	}
	return specs, nil
}

// BuildJob derives a replayable job from a recorded session history. Each
// input record becomes a prompt named after the output line that solicited
// it; empty acknowledgments become skips.
func BuildJob(command string, params []string, history []timeline.IoRecord) *config.Job {
	det, err := prompt.NewDetector()
	if err != nil {
		// The default template list always compiles.
		panic(err)
	}

	var prompts []config.PromptSpec
	for _, rec := range history {
		if rec.Type != timeline.TypeInput {
			continue
		}

		name := "prompt"
		if rec.PreviousNeighbor != nil {
			soliciting := history[rec.PreviousNeighbor.Index].Value
			name = promptName(det, soliciting)
		}

		spec := config.PromptSpec{Name: name}
		if rec.Skip() {
			spec.SkipIt = true
		} else {
			value := rec.Value
			spec.Value = &value
		}
		prompts = append(prompts, spec)
	}

	return &config.Job{
		ID:      DefaultJobID,
		Command: command,
		Params:  params,
		Settings: []config.Setting{
			{Name: "exitOnMatch", Value: "An error occurred"},
		},
		Interaction: &config.Interaction{
			Prompts:   prompts,
			Attention: []string{},
		},
	}
}

// promptName derives a machine key from the output line that preceded an
// input: the detected prompt text when the line matches a template, the
// whole cleaned line otherwise.
func promptName(det *prompt.Detector, line string) string {
	line = framer.Clean(line)
	if m, ok := det.Detect(line); ok {
		return m.Key()
	}
	if key := prompt.CamelKey(line); key != "" {
		return key
	}
	return "prompt"
}
