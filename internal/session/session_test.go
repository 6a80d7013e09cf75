package session

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscarnevarezleal/axolotl/internal/config"
	"github.com/oscarnevarezleal/axolotl/internal/timeline"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newTestSession(t *testing.T, job *config.Job) *Session {
	t.Helper()

	s, err := New(Options{
		Item:   config.NewJobItem(job),
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	s.stdin = nopWriteCloser{&bytes.Buffer{}}
	return s
}

func TestEchoAcknowledgment(t *testing.T) {
	s := newTestSession(t, &config.Job{ID: "t", Command: "true"})

	s.lastQuestion = "Name"
	s.lastAnswer = "Bob"

	assert.True(t, s.isEchoAck("Name: Bob"))
	assert.True(t, s.isEchoAck("Name is Bob"))
	assert.False(t, s.isEchoAck("NameBob: extra"))
	assert.False(t, s.isEchoAck("Other: Bob"))

	s.lastAnswer = ""
	assert.False(t, s.isEchoAck("Name: Bob"))
}

func TestProcessLineReleasesPendingAnswerOnEcho(t *testing.T) {
	s := newTestSession(t, &config.Job{ID: "t", Command: "true"})
	ctx := context.Background()

	s.lastQuestion = "Username"
	s.lastAnswer = "alice"
	require.True(t, s.coord.TryAcquire(LockPendingAnswer))

	lines := make(chan string, 4)
	require.NoError(t, s.processLine(ctx, "Username: alice", lines))

	assert.False(t, s.coord.IsHeld(LockPendingAnswer), "echo should release the pending answer")
	assert.Empty(t, lines, "acknowledgment lines are not forwarded to the loop")
}

func TestResolveScriptedBeatsDefault(t *testing.T) {
	value := "2.0"
	s := newTestSession(t, &config.Job{
		ID:      "t",
		Command: "true",
		Interaction: &config.Interaction{
			Prompts: []config.PromptSpec{{Name: "version", Value: &value}},
		},
	})
	stdin := &bytes.Buffer{}
	s.stdin = nopWriteCloser{stdin}

	s.onLine(context.Background(), "Version: (1.0)")

	assert.Equal(t, "2.0\n", stdin.String(), "scripted value wins over the template default")
	assert.True(t, s.coord.IsHeld(LockPendingAnswer), "non-blank answer awaits its echo")
	assert.Equal(t, "2.0", s.lastAnswer)
}

func TestResolveAcceptsDefaultWithBlankSubmit(t *testing.T) {
	s := newTestSession(t, &config.Job{ID: "t", Command: "true"})
	stdin := &bytes.Buffer{}
	s.stdin = nopWriteCloser{stdin}

	s.onLine(context.Background(), "Color: (blue)")

	assert.Equal(t, "\n", stdin.String())
	assert.False(t, s.coord.IsHeld(LockPendingAnswer), "blank answers expect no echo")
	assert.False(t, s.coord.TraceWindowOpen())
}

func TestResolveSkippedPromptSubmitsBlank(t *testing.T) {
	s := newTestSession(t, &config.Job{
		ID:      "t",
		Command: "true",
		Interaction: &config.Interaction{
			Prompts: []config.PromptSpec{{Name: "license", SkipIt: true}},
		},
	})
	stdin := &bytes.Buffer{}
	s.stdin = nopWriteCloser{stdin}

	s.onLine(context.Background(), "Pick a license:")

	assert.Equal(t, "\n", stdin.String())
	assert.False(t, s.coord.IsHeld(LockPendingAnswer))
}

func TestUnresolvablePromptDegradesToBlank(t *testing.T) {
	// No scripted value, no default, oracle disabled, no key source: the
	// session submits blank rather than stalling.
	s := newTestSession(t, &config.Job{ID: "t", Command: "true"})
	stdin := &bytes.Buffer{}
	s.stdin = nopWriteCloser{stdin}

	s.onLine(context.Background(), "Username:")

	assert.Equal(t, "\n", stdin.String())
	assert.False(t, s.coord.TraceWindowOpen(), "window closes once the fallback answer is written")
}

func TestPromptSpecConsumedOnce(t *testing.T) {
	value := "alice"
	s := newTestSession(t, &config.Job{
		ID:      "t",
		Command: "true",
		Interaction: &config.Interaction{
			Prompts: []config.PromptSpec{{Name: "username", Value: &value}},
		},
	})
	stdin := &bytes.Buffer{}
	s.stdin = nopWriteCloser{stdin}
	ctx := context.Background()

	s.onLine(ctx, "Username:")
	require.Equal(t, "alice\n", stdin.String())

	// Second occurrence finds no spec left; the prompt has no default, so
	// the fallback blank applies.
	s.coord.Release(LockPendingAnswer)
	stdin.Reset()
	s.lastOutput = ""
	s.lastAnswer = ""
	s.onLine(ctx, "Username:")
	assert.Equal(t, "\n", stdin.String())
}

func TestHiddenAnswerReleasesPendingAnswerImmediately(t *testing.T) {
	value := "s3cret"
	s := newTestSession(t, &config.Job{
		ID:      "t",
		Command: "true",
		Interaction: &config.Interaction{
			Prompts: []config.PromptSpec{{Name: "password", Value: &value, Hidden: true}},
		},
	})
	stdin := &bytes.Buffer{}
	s.stdin = nopWriteCloser{stdin}

	s.onLine(context.Background(), "Password:")

	assert.Equal(t, "s3cret\n", stdin.String())
	assert.False(t, s.coord.IsHeld(LockPendingAnswer), "hidden answers expect no echo")
}

func TestTickSubmitsBlankWhenStalled(t *testing.T) {
	s := newTestSession(t, &config.Job{
		ID:      "t",
		Command: "true",
		Settings: []config.Setting{
			{Name: "hitEnterWhenNoStdout", Value: true},
		},
	})
	stdin := &bytes.Buffer{}
	s.stdin = nopWriteCloser{stdin}
	s.interval = 10 * time.Millisecond

	// lastAnswerAt is still zero, so the session counts as long stale.
	s.onTick(context.Background())

	assert.Equal(t, "\n", stdin.String())
	history := s.store.MergeHistory()
	require.Len(t, history, 1)
	assert.Equal(t, timeline.TypeInput, history[0].Type)
	assert.Equal(t, "\n", history[0].Value)
}

func TestTickIsInertWithoutKeepaliveSetting(t *testing.T) {
	s := newTestSession(t, &config.Job{ID: "t", Command: "true"})
	stdin := &bytes.Buffer{}
	s.stdin = nopWriteCloser{stdin}
	s.interval = 10 * time.Millisecond

	s.onTick(context.Background())

	assert.Empty(t, stdin.String())
}

func TestManualKeystrokesComposeAnswer(t *testing.T) {
	s := newTestSession(t, &config.Job{ID: "t", Command: "true"})
	stdin := &bytes.Buffer{}
	s.stdin = nopWriteCloser{stdin}
	// A keystroke source is present, so the trace window stays open for
	// manual input instead of degrading to a blank answer.
	s.keysIn = strings.NewReader("")

	ctx := context.Background()
	s.onLine(ctx, "Username:")
	require.True(t, s.coord.TraceWindowOpen())
	assert.Empty(t, stdin.String(), "nothing is written while the window is open")

	for _, r := range "box" {
		s.onKey(ctx, Key{Name: KeyRune, Rune: r})
	}
	s.onKey(ctx, Key{Name: KeyBackspace})
	s.onKey(ctx, Key{Name: KeyRune, Rune: 'b'})
	s.onKey(ctx, Key{Name: KeyEnter})

	assert.Equal(t, "bob\n", stdin.String(), "backspace edits the buffer before submit")
	assert.False(t, s.coord.TraceWindowOpen())
	assert.True(t, s.coord.IsHeld(LockPendingAnswer), "typed answer awaits its echo")
}

func TestMirrorSerializesStdoutAndStderr(t *testing.T) {
	s := newTestSession(t, &config.Job{ID: "t", Command: "true"})
	mirror := &bytes.Buffer{}
	s.mirror = mirror

	const n = 200
	var stderrIn bytes.Buffer
	for i := 0; i < n; i++ {
		stderrIn.WriteString("err line\n")
	}

	ctx := context.Background()
	lines := make(chan string, 4)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			assert.NoError(t, s.processLine(ctx, "out line", lines))
			<-lines
		}
	}()
	go func() {
		defer wg.Done()
		s.pumpStderr(&stderrIn)
	}()
	wg.Wait()

	mirrored := strings.Split(strings.TrimRight(mirror.String(), "\n"), "\n")
	require.Len(t, mirrored, 2*n)
	for _, line := range mirrored {
		if line != "out line" && line != "err line" {
			t.Fatalf("interleaved mirror line %q", line)
		}
	}
}

func TestRunReportsFailureOnContextCancel(t *testing.T) {
	job := &config.Job{ID: "hang", Command: "sleep", Params: []string{"60"}}
	s, err := New(Options{
		Item:     config.NewJobItem(job),
		Logger:   quietLogger(),
		Interval: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitCode, "a cancelled session must not report success")
}

func TestRunRejectsMissingCommand(t *testing.T) {
	s := newTestSession(t, &config.Job{ID: "t", Command: "   "})

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrMissingCommand)
}

func TestRunScriptedSessionEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fixture build in short mode")
	}

	botPath := buildPromptBot(t)
	value := "alice"
	job := &config.Job{
		ID:      "signup",
		Command: botPath,
		Params:  []string{"-script", "Username:|Password: (admin)"},
		Interaction: &config.Interaction{
			Prompts: []config.PromptSpec{{Name: "username", Value: &value}},
		},
	}

	s, err := New(Options{
		Item:     config.NewJobItem(job),
		Logger:   quietLogger(),
		Interval: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	var inputs, outputs []string
	for _, rec := range res.History {
		switch rec.Type {
		case timeline.TypeInput:
			inputs = append(inputs, rec.Value)
		case timeline.TypeOutput:
			outputs = append(outputs, rec.Value)
		}
	}

	assert.Equal(t, []string{"alice", "\n"}, inputs,
		"scripted username, then blank accepting the password default")
	assert.Contains(t, outputs, "Username:")
	assert.Contains(t, outputs, "Username: alice", "the echoed answer is still recorded")
	assert.Contains(t, outputs, "Password: (admin)")

	// The recorded history replays: the derived job scripts the username and
	// skips the accepted password default.
	learned := BuildJob(botPath, job.Params, res.History)
	require.NotNil(t, learned.Interaction)
	require.Len(t, learned.Interaction.Prompts, 2)

	assert.Equal(t, "username", learned.Interaction.Prompts[0].Name)
	v, ok := learned.Interaction.Prompts[0].ScriptedValue()
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	assert.Equal(t, "password", learned.Interaction.Prompts[1].Name)
	assert.True(t, learned.Interaction.Prompts[1].SkipIt)
}

func TestRunPropagatesChildExitCode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fixture build in short mode")
	}

	botPath := buildPromptBot(t)
	job := &config.Job{
		ID:      "fail",
		Command: botPath,
		Params:  []string{"-script", "", "-exit-code", "3"},
	}

	s, err := New(Options{Item: config.NewJobItem(job), Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunTerminatesOnExitMatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fixture build in short mode")
	}

	botPath := buildPromptBot(t)
	job := &config.Job{
		ID:      "crash",
		Command: botPath,
		Params:  []string{"-banner", "An error occurred while provisioning", "-script", "Username:"},
		Settings: []config.Setting{
			{Name: "exitOnMatch", Value: "An error occurred"},
		},
	}

	s, err := New(Options{Item: config.NewJobItem(job), Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitCode, "a matched line kills the child")
}

func buildPromptBot(t *testing.T) string {
	t.Helper()

	botPath := filepath.Join(t.TempDir(), "promptbot")
	cmd := exec.Command("go", "build", "-o", botPath, "../../cmd/promptbot")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "build promptbot: %s", out)
	return botPath
}
