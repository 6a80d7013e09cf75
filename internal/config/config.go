// Package config models the portable job file: the description of one
// recorded or replayable interactive session.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the job file looked up when no --file flag is given.
const DefaultFileName = "axo.yaml"

var (
	// ErrConfigNotFound indicates the job file does not exist.
	ErrConfigNotFound = errors.New("config file not found")
	// ErrJobNotFound indicates no job in the file matches the requested id.
	ErrJobNotFound = errors.New("job not found")
)

// File is the top-level shape of the job file.
type File struct {
	Jobs []Job `yaml:"jobs"`
}

// Job describes one interactive session: the command to spawn, its
// orchestration settings, optional oracle framing text, and the recorded or
// scripted interaction. Immutable once loaded for replay.
type Job struct {
	ID                 string       `yaml:"id"`
	Command            string       `yaml:"command"`
	Params             []string     `yaml:"params,omitempty"`
	Settings           []Setting    `yaml:"settings,omitempty"`
	Context            string       `yaml:"context,omitempty"`
	Conclusion         string       `yaml:"conclusion,omitempty"`
	OutputInstructions string       `yaml:"output_instructions,omitempty"`
	Interaction        *Interaction `yaml:"interaction,omitempty"`
}

// Setting is one name/value pair from the job's settings list. Values may be
// booleans or strings in the file; coercion happens in Settings.
type Setting struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// Interaction holds the scripted prompts and attention substrings for a job.
type Interaction struct {
	Prompts   []PromptSpec `yaml:"prompts,omitempty"`
	Attention []string     `yaml:"attention,omitempty"`
}

// Load reads and parses a job file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the job file.
func Save(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal job file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write job file: %w", err)
	}
	return nil
}

// FindJob returns the job whose id matches seed.
func (f *File) FindJob(seed string) (*Job, error) {
	for i := range f.Jobs {
		if f.Jobs[i].ID == seed {
			return &f.Jobs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, seed)
}

// Settings is the typed mapping coerced from a job's settings list.
type Settings map[string]any

// CoerceSettings folds the settings list into a typed mapping: boolean
// literals and the strings "true"/"false" become booleans, everything else
// stays a string.
func (j *Job) CoerceSettings() Settings {
	out := make(Settings, len(j.Settings))
	for _, s := range j.Settings {
		switch v := s.Value.(type) {
		case bool:
			out[s.Name] = v
		case string:
			switch v {
			case "true":
				out[s.Name] = true
			case "false":
				out[s.Name] = false
			default:
				out[s.Name] = v
			}
		default:
			out[s.Name] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// Bool returns the named setting as a boolean, false when absent or not a
// boolean.
func (s Settings) Bool(name string) bool {
	v, ok := s[name].(bool)
	return ok && v
}

// String returns the named setting as a string, "" when absent or not a
// string.
func (s Settings) String(name string) string {
	v, _ := s[name].(string)
	return v
}

// JobItem pairs a job with its derived settings mapping. Created once per
// loaded job, read-only afterward.
type JobItem struct {
	Job      *Job
	Settings Settings
}

// NewJobItem derives the coerced settings for a loaded job.
func NewJobItem(j *Job) *JobItem {
	return &JobItem{Job: j, Settings: j.CoerceSettings()}
}
