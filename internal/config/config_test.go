package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleFile = `
jobs:
  - id: seed-db
    command: node
    params: ["scripts/seed.js"]
    settings:
      - {name: exitOnMatch, value: "An error occurred"}
      - {name: hitEnterWhenNoStdout, value: "true"}
    context: "Seeding a development database"
    conclusion: "Did the seed succeed?"
    output_instructions: "Summarize the seeded records"
    interaction:
      prompts:
        - username
        - {name: password, value: "hunter2", hidden: true}
        - {name: version, skip: true}
        - {name: email, value: "dev@example.com"}
      attention: ["WARN", "deprecated"]
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "axo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0644))
	return path
}

func TestLoadAndFindJob(t *testing.T) {
	f, err := Load(writeSample(t))
	require.NoError(t, err)
	require.Len(t, f.Jobs, 1)

	job, err := f.FindJob("seed-db")
	require.NoError(t, err)
	assert.Equal(t, "node", job.Command)
	assert.Equal(t, []string{"scripts/seed.js"}, job.Params)
	assert.Equal(t, "Seeding a development database", job.Context)
	assert.Equal(t, []string{"WARN", "deprecated"}, job.Interaction.Attention)

	_, err = f.FindJob("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestPromptSpecVariants(t *testing.T) {
	f, err := Load(writeSample(t))
	require.NoError(t, err)

	prompts := f.Jobs[0].Interaction.Prompts
	require.Len(t, prompts, 4)

	assert.Equal(t, "username", prompts[0].Name)
	assert.Equal(t, PromptBare, prompts[0].Kind())

	assert.Equal(t, "password", prompts[1].Name)
	assert.Equal(t, PromptHidden, prompts[1].Kind())
	v, ok := prompts[1].ScriptedValue()
	assert.True(t, ok)
	assert.Equal(t, "hunter2", v)

	assert.Equal(t, PromptSkipped, prompts[2].Kind())

	assert.Equal(t, PromptScripted, prompts[3].Kind())
	v, ok = prompts[3].ScriptedValue()
	assert.True(t, ok)
	assert.Equal(t, "dev@example.com", v)
}

func TestPromptSpecRejectsSequences(t *testing.T) {
	var spec PromptSpec
	err := yaml.Unmarshal([]byte("[a, b]"), &spec)
	assert.Error(t, err)
}

func TestPromptSpecMarshalRoundTrip(t *testing.T) {
	value := "2.0"
	in := Interaction{
		Prompts: []PromptSpec{
			{Name: "username"},
			{Name: "version", Value: &value},
			{Name: "license", SkipIt: true},
		},
	}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)

	// Bare prompts serialize back to plain strings.
	assert.Contains(t, string(data), "- username\n")

	var out Interaction
	require.NoError(t, yaml.Unmarshal(data, &out))
	require.Len(t, out.Prompts, 3)
	assert.Equal(t, PromptBare, out.Prompts[0].Kind())
	assert.Equal(t, PromptScripted, out.Prompts[1].Kind())
	assert.Equal(t, PromptSkipped, out.Prompts[2].Kind())
}

func TestCoerceSettings(t *testing.T) {
	job := Job{Settings: []Setting{
		{Name: "exitOnMatch", Value: "error"},
		{Name: "flag", Value: "true"},
		{Name: "off", Value: "false"},
		{Name: "native", Value: true},
	}}

	s := job.CoerceSettings()
	assert.Equal(t, "error", s["exitOnMatch"])
	assert.Equal(t, true, s["flag"])
	assert.Equal(t, false, s["off"])
	assert.Equal(t, true, s["native"])

	assert.Equal(t, "error", s.String("exitOnMatch"))
	assert.True(t, s.Bool("flag"))
	assert.False(t, s.Bool("off"))
	assert.False(t, s.Bool("missing"))
	assert.Equal(t, "", s.String("flag"))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	value := "alice"
	f := &File{Jobs: []Job{{
		ID:      "axo",
		Command: "npm",
		Params:  []string{"init"},
		Settings: []Setting{
			{Name: "exitOnMatch", Value: "An error occurred"},
		},
		Interaction: &Interaction{
			Prompts: []PromptSpec{{Name: "username", Value: &value}},
		},
	}}}

	require.NoError(t, Save(path, f))

	loaded, err := Load(path)
	require.NoError(t, err)
	job, err := loaded.FindJob("axo")
	require.NoError(t, err)
	assert.Equal(t, "npm", job.Command)
	v, ok := job.Interaction.Prompts[0].ScriptedValue()
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	item := NewJobItem(job)
	assert.Equal(t, "An error occurred", item.Settings.String("exitOnMatch"))
}
