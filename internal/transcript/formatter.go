// Package transcript formats a recorded session history for console output.
package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/oscarnevarezleal/axolotl/internal/timeline"
)

// Formatter renders timeline records for console display.
type Formatter struct {
	// Color enables ANSI colors; off by default so piped output stays plain.
	Color bool
}

// NewFormatter creates a formatter with colors enabled only when the standard
// output is a terminal, per the color package's own detection.
func NewFormatter() *Formatter {
	return &Formatter{Color: !color.NoColor}
}

// FormatRecord formats one exchange record for console display.
func (f *Formatter) FormatRecord(rec timeline.IoRecord) string {
	ts := time.UnixMilli(rec.Timestamp).Format("15:04:05.000")

	switch rec.Type {
	case timeline.TypeInput:
		label := "IN "
		value := rec.Value
		switch value {
		case "\n":
			value = "<enter>"
		case "\t\r":
			value = "<tab>"
		}
		return fmt.Sprintf("%s %s %s", ts, f.paint(color.FgBlue, label), value)
	default:
		return fmt.Sprintf("%s %s %s", ts, f.paint(color.FgHiBlack, "OUT"), rec.Value)
	}
}

// FormatHistory formats a whole merged history, one record per line.
func (f *Formatter) FormatHistory(history []timeline.IoRecord) string {
	var b strings.Builder
	for _, rec := range history {
		b.WriteString(f.FormatRecord(rec))
		b.WriteByte('\n')
	}
	return b.String()
}

// Summary formats a one-line digest of a recorded session: how many prompts
// were answered and how many lines of output were observed.
func (f *Formatter) Summary(history []timeline.IoRecord) string {
	var inputs, outputs int
	for _, rec := range history {
		if rec.Type == timeline.TypeInput {
			inputs++
		} else {
			outputs++
		}
	}
	return fmt.Sprintf("%d answers over %d lines of output", inputs, outputs)
}

func (f *Formatter) paint(attr color.Attribute, s string) string {
	if !f.Color {
		return s
	}
	return color.New(attr).Sprint(s)
}
