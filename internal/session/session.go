// Package session is the interactive process orchestration engine: it spawns
// a child process, frames its output into lines under backpressure, detects
// embedded prompts, resolves answers and records the exchange as a
// replayable timeline.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"

	"github.com/oscarnevarezleal/axolotl/internal/config"
	"github.com/oscarnevarezleal/axolotl/internal/framer"
	"github.com/oscarnevarezleal/axolotl/internal/oracle"
	"github.com/oscarnevarezleal/axolotl/internal/prompt"
	"github.com/oscarnevarezleal/axolotl/internal/timeline"
)

// ErrMissingCommand indicates the job has no executable to spawn.
var ErrMissingCommand = errors.New("no command given")

// DefaultInterval is the health-check tick interval.
const DefaultInterval = 3000 * time.Millisecond

// Options configures one orchestration session.
type Options struct {
	Item   *config.JobItem
	Oracle oracle.Oracle
	Logger *slog.Logger
	// Interval overrides the health-check interval; zero means
	// DefaultInterval.
	Interval time.Duration
	// Keys is the raw keystroke source for manual answering; nil disables
	// keystroke capture and unresolvable prompts degrade to blank answers.
	Keys io.Reader
	// Mirror receives a copy of the child's output lines, the way learn
	// mode shows the observed session on the parent terminal. Nil disables.
	Mirror io.Writer
	// Out receives the oracle's closing output when the job carries
	// output instructions. Nil discards it.
	Out io.Writer
}

// Result is the outcome of a finished session.
type Result struct {
	// ExitCode is the child's exit status. The child's own non-zero exit
	// is not an orchestrator error.
	ExitCode int
	// History is the chronological merge of everything exchanged.
	History []timeline.IoRecord
}

type manualPrompt struct {
	question string
	hidden   bool
}

// Session orchestrates one child process from spawn to exit.
type Session struct {
	item     *config.JobItem
	oracle   oracle.Oracle
	logger   *slog.Logger
	detector *prompt.Detector
	interval time.Duration
	keysIn   io.Reader
	mirror   io.Writer
	out      io.Writer

	coord *Coordinator
	store *timeline.Store

	child *exec.Cmd
	stdin io.WriteCloser

	mirrorMu     sync.Mutex
	mu           sync.Mutex
	lastOutput   string
	lastQuestion string
	lastAnswer   string
	lastAnswerAt time.Time

	doneReading atomic.Bool

	prompts []*config.PromptSpec
	keybuf  []rune
	manual  *manualPrompt

	exitErr  error
	exitSeen bool
	stopped  bool
}

// New builds a session for the given job.
func New(opts Options) (*Session, error) {
	if opts.Item == nil || opts.Item.Job == nil {
		return nil, errors.New("session requires a job")
	}

	det, err := prompt.NewDetector()
	if err != nil {
		return nil, err
	}

	s := &Session{
		item:     opts.Item,
		oracle:   opts.Oracle,
		logger:   opts.Logger,
		detector: det,
		interval: opts.Interval,
		keysIn:   opts.Keys,
		mirror:   opts.Mirror,
		out:      opts.Out,
		coord:    NewCoordinator(),
		store:    timeline.NewStore(),
	}
	if s.oracle == nil {
		s.oracle = oracle.Disabled{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if in := opts.Item.Job.Interaction; in != nil {
		for i := range in.Prompts {
			s.prompts = append(s.prompts, &in.Prompts[i])
		}
	}
	return s, nil
}

// Coordinator exposes the session's lock set, mainly for tests.
func (s *Session) Coordinator() *Coordinator { return s.coord }

// streamGate pauses output consumption while an answer is being composed:
// the stream resumes only once both the stdout and trace-window locks are
// free.
type streamGate struct{ coord *Coordinator }

func (g streamGate) Wait(ctx context.Context) error {
	if err := g.coord.Wait(ctx, LockStdout); err != nil {
		return err
	}
	return g.coord.Wait(ctx, LockTraceWindow)
}

// Run spawns the child and drives the event loop until the child exits, an
// exit keystroke arrives, or an exitOnMatch line is seen.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	job := s.item.Job
	if strings.TrimSpace(job.Command) == "" {
		return nil, ErrMissingCommand
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Debug("spawning child", "command", job.Command, "params", job.Params)

	child := exec.CommandContext(ctx, job.Command, job.Params...)

	stdin, err := child.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := child.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := child.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := child.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", job.Command, err)
	}
	s.child = child
	s.stdin = stdin

	s.logger.Debug("child started", "pid", child.Process.Pid)

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		defer s.doneReading.Store(true)
		chunks := readChunks(ctx, stdout)
		err := framer.Run(ctx, chunks, streamGate{s.coord}, func(line string) error {
			return s.processLine(ctx, line, lines)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("output stream ended", "error", err)
		}
	}()

	go s.pumpStderr(stderr)

	// Two buffered copies of the wait result: one feeds the combiner, one
	// reaps the child when the loop stops early.
	exitNotify := make(chan error, 1)
	exitDone := make(chan error, 1)
	go func() {
		err := child.Wait()
		exitNotify <- err
		exitDone <- err
	}()

	ticks := s.startTicker(ctx)

	var keys <-chan Key
	if s.keysIn != nil {
		keys = ReadKeys(ctx, s.keysIn, s.logger)
	}

	events := Combine(ctx, lines, ticks, keys, exitNotify)

	// Lines arriving while the trace window is open are deferred until
	// the manual answer is submitted; processing them would mean blocking
	// on a lock only a later key event can release.
	var deferred []Event

	replay := func() error {
		for len(deferred) > 0 && !s.coord.TraceWindowOpen() {
			ev := deferred[0]
			deferred = deferred[1:]
			if err := s.handleOutputEvent(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	}

	for ev := range events {
		switch ev.Kind {
		case KindKey:
			s.onKey(ctx, ev.Key)
			if err := replay(); err != nil {
				return nil, err
			}
		case KindExit:
			s.exitErr = ev.ExitErr
			s.exitSeen = true
		default:
			if s.coord.TraceWindowOpen() {
				if ev.Kind == KindLine {
					deferred = append(deferred, ev)
				}
				// Ticks carry no value; stale ones are dropped.
				continue
			}
			if err := s.handleOutputEvent(ctx, ev); err != nil {
				return nil, err
			}
		}
		if s.stopped {
			if child.Process != nil {
				_ = child.Process.Kill()
			}
			break
		}
	}

	if !s.exitSeen {
		// Exit keystroke or cancelled context: the event stream closed
		// before the exit event was delivered. Collect the wait result so
		// the child is reaped and its real status reported instead of a
		// phantom success.
		s.exitErr = <-exitDone
	}

	s.closingExchanges(ctx, job)

	return &Result{
		ExitCode: exitCode(s.exitErr),
		History:  s.store.MergeHistory(),
	}, nil
}

// handleOutputEvent consumes one line or tick event. The read loop never
// consumes output while an answer is being written or still awaiting its
// echo.
func (s *Session) handleOutputEvent(ctx context.Context, ev Event) error {
	if err := s.coord.Wait(ctx, LockStdout); err != nil {
		return err
	}
	if err := s.coord.Wait(ctx, LockPendingAnswer); err != nil {
		return err
	}
	if ev.Kind == KindTick {
		s.onTick(ctx)
	} else {
		s.onLine(ctx, ev.Line)
	}
	return nil
}

// processLine runs on the reader side, before a line reaches the main loop:
// recording, attention notes, echo-acknowledgment and exit matching.
func (s *Session) processLine(ctx context.Context, line string, lines chan<- string) error {
	if line == "" {
		return nil
	}

	s.mirrorLine(line)

	s.store.RecordOutput(line)

	if in := s.item.Job.Interaction; in != nil {
		for _, key := range in.Attention {
			if key != "" && strings.Contains(line, key) {
				s.logger.Debug(color.HiBlackString("[ATTN] %s", key))
				s.oracle.Note(ctx, fmt.Sprintf("Mind the following log content for further reference: %s = %s", key, line))
				break
			}
		}
	}

	if s.isEchoAck(line) {
		s.mu.Lock()
		q, a := s.lastQuestion, s.lastAnswer
		s.mu.Unlock()
		s.logger.Debug("[ACK]", "question", q, "answer", a)
		s.coord.Release(LockPendingAnswer)
		return nil
	}

	select {
	case lines <- line:
	case <-ctx.Done():
		return ctx.Err()
	}

	if match := s.item.Settings.String("exitOnMatch"); match != "" && strings.Contains(line, match) {
		s.logger.Warn("The process will be terminated now.")
		if s.child.Process != nil {
			_ = s.child.Process.Kill()
		}
	}
	return nil
}

// isEchoAck applies the echo-acknowledgment rule: the line carries the last
// question as prefix and the last answer as suffix. A known heuristic; see
// the prefix/suffix rule in the detector docs before changing it.
func (s *Session) isEchoAck(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuestion != "" && s.lastAnswer != "" &&
		strings.HasPrefix(line, s.lastQuestion) &&
		strings.HasSuffix(line, s.lastAnswer)
}

func (s *Session) onTick(ctx context.Context) {
	s.mu.Lock()
	stale := time.Since(s.lastAnswerAt) > s.interval
	s.mu.Unlock()

	if stale && s.item.Settings.Bool("hitEnterWhenNoStdout") {
		s.logger.Debug("no recent output, hitting enter")
		s.answer(ctx, "", false)
	}
}

func (s *Session) onKey(ctx context.Context, k Key) {
	if k.ExitKey() {
		s.logger.Debug("exit keystroke", "key", k.Name)
		s.stopped = true
		return
	}

	if !s.coord.TraceWindowOpen() || s.manual == nil {
		return
	}

	switch k.Name {
	case KeyBackspace:
		if len(s.keybuf) > 0 {
			s.keybuf = s.keybuf[:len(s.keybuf)-1]
		}
	case KeyTab:
		s.keybuf = append(s.keybuf, '\t')
	case KeyEnter:
		text := string(s.keybuf)
		s.keybuf = nil
		m := s.manual
		s.manual = nil
		s.coord.CloseTraceWindow()
		s.submit(ctx, m.question, text, m.hidden)
	case KeyRune:
		s.keybuf = append(s.keybuf, k.Rune)
	}
}

func (s *Session) onLine(ctx context.Context, line string) {
	s.mu.Lock()
	lastAnswer, lastOutput := s.lastAnswer, s.lastOutput
	s.mu.Unlock()

	if line != "" && line == lastAnswer {
		s.logger.Debug("skipping answer echo")
		return
	}
	if line == lastOutput {
		// Repeated prompt output while the child waits on stdin.
		s.logger.Debug("[WAITING]")
		return
	}

	s.logger.Debug("[OUTPUT]", "line", line)

	m, detected := s.detector.Detect(line)
	spec := s.takeSpec(line, m)

	switch {
	case spec != nil:
		s.resolve(ctx, spec, m, line)
	case detected:
		s.resolve(ctx, &config.PromptSpec{Name: m.Key()}, m, line)
	}

	s.mu.Lock()
	s.lastOutput = line
	s.mu.Unlock()
}

// takeSpec finds and consumes the first unused prompt spec matching the
// line, either by its normalized key or by name substring.
func (s *Session) takeSpec(line string, m *prompt.Match) *config.PromptSpec {
	for i, spec := range s.prompts {
		if spec == nil {
			continue
		}
		if (m != nil && spec.Name == m.Key()) || strings.Contains(line, spec.Name) {
			s.prompts[i] = nil
			return spec
		}
	}
	return nil
}

// resolve applies the answer precedence for one detected prompt: scripted
// value, then template default, then oracle, then live keystrokes.
func (s *Session) resolve(ctx context.Context, spec *config.PromptSpec, m *prompt.Match, line string) {
	question := spec.Name
	if m != nil {
		question = m.Prompt
	}
	hidden := spec.Kind() == config.PromptHidden

	if value, ok := spec.ScriptedValue(); ok {
		s.oracle.Note(ctx, fmt.Sprintf("Please mind when asked to %s, the answer will be %q", line, value))
		s.submit(ctx, question, value, hidden)
		return
	}

	if spec.Kind() == config.PromptSkipped {
		s.submit(ctx, question, "", hidden)
		return
	}

	if m != nil && m.HasDefault {
		// Accept the suggested value by pressing enter.
		s.logger.Debug("accepting default", "prompt", question, "default", m.Default)
		s.submit(ctx, question, "", hidden)
		return
	}

	s.askOracleOrUser(ctx, question, line, hidden)
}

func (s *Session) askOracleOrUser(ctx context.Context, question, line string, hidden bool) {
	if err := s.coord.OpenTraceWindow(); err != nil {
		s.logger.Debug("trace window busy", "error", err)
		return
	}
	s.manual = &manualPrompt{question: question, hidden: hidden}

	if s.oracle.Enabled() {
		answer, err := s.oracleAnswer(ctx, question, line)
		if err == nil && answer != "" {
			s.manual = nil
			s.coord.CloseTraceWindow()
			s.submit(ctx, question, answer, hidden)
			return
		}
		if err != nil {
			s.logger.Warn("oracle failed, falling back", "error", err)
		}
	}

	if s.keysIn == nil {
		// No keystroke source to fall back to: accept whatever the child
		// suggests rather than stalling the session.
		s.manual = nil
		s.coord.CloseTraceWindow()
		s.submit(ctx, question, "", hidden)
	}
	// Otherwise the trace window stays open and subsequent keystrokes
	// compose the answer.
}

// oracleAnswer consults the oracle: first the structured parse of the raw
// line, then a conversational ask. A "\n" result means "press enter".
func (s *Session) oracleAnswer(ctx context.Context, question, line string) (string, error) {
	if reply, err := s.oracle.ParseOutput(ctx, line); err == nil && reply.Call != nil {
		if answer, err := oracle.Invoke(reply.Call); err == nil && answer != "" {
			return answer, nil
		} else if err != nil {
			s.logger.Debug("malformed parse call", "error", err)
		}
	}

	reply, err := s.oracle.Chat(ctx, question)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply.Text), nil
}

// submit answers one question: it takes the stdout lock so no output is
// consumed mid-answer, writes, then releases.
func (s *Session) submit(ctx context.Context, question, text string, hidden bool) {
	s.logger.Warn(color.YellowString("[QUESTION] %s", question))

	s.mu.Lock()
	s.lastQuestion = question
	s.mu.Unlock()

	if err := s.coord.Acquire(ctx, LockStdout); err != nil {
		return
	}
	defer s.coord.Release(LockStdout)

	if err := s.answer(ctx, text, hidden); err != nil {
		s.logger.Warn("failed to write answer", "error", err)
	}
}

// answer writes one line of input to the child and records it. Non-blank
// answers take the pending-answer lock until their echo is acknowledged;
// hidden answers release it immediately since no echo is expected.
func (s *Session) answer(ctx context.Context, text string, hidden bool) error {
	text = strings.TrimRight(text, "\r\n")
	blank := text == "" || text == "\t"

	if !blank {
		if err := s.coord.Acquire(ctx, LockPendingAnswer); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.lastAnswer = text
	s.lastAnswerAt = time.Now()
	s.mu.Unlock()

	s.logger.Warn(color.BlueString("[INPUT] %q", text))

	switch {
	case text == "\t":
		s.store.RecordInput("\t\r")
	case blank:
		s.store.RecordInput("")
	default:
		s.store.RecordInput(text)
	}

	wire := text + "\n"
	if blank {
		wire = "\n"
	}
	if _, err := io.WriteString(s.stdin, wire); err != nil {
		if !blank {
			s.coord.Release(LockPendingAnswer)
		}
		return err
	}

	if hidden && !blank {
		s.coord.Release(LockPendingAnswer)
	}
	return nil
}

func (s *Session) closingExchanges(ctx context.Context, job *config.Job) {
	if !s.oracle.Enabled() {
		return
	}

	if job.Conclusion != "" {
		if reply, err := s.oracle.Chat(ctx, job.Conclusion); err == nil {
			s.logger.Debug("conclusion", "text", reply.Text)
		} else {
			s.logger.Debug("conclusion exchange failed", "error", err)
		}
	}

	if job.OutputInstructions != "" {
		reply, err := s.oracle.Chat(ctx, job.OutputInstructions)
		if err != nil {
			s.logger.Debug("output instructions failed", "error", err)
			return
		}
		if s.out != nil {
			fmt.Fprintln(s.out, reply.Text)
		}
	}
}

// mirrorLine copies one line of child output to the mirror writer. Stdout
// and stderr are pumped by separate goroutines, so writes are serialized.
func (s *Session) mirrorLine(line string) {
	if s.mirror == nil {
		return
	}
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	fmt.Fprintln(s.mirror, line)
}

func (s *Session) startTicker(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time, 1)
	go func() {
		defer close(out)
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if s.doneReading.Load() {
					return
				}
				select {
				case out <- now:
				default:
					// Consumer is busy; this tick carries no value.
				}
			}
		}
	}()
	return out
}

func (s *Session) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s.mirrorLine(line)
		s.logger.Debug("child stderr", "line", line)
	}
}

func readChunks(ctx context.Context, r io.Reader) <-chan []byte {
	out := make(chan []byte, 8)
	go func() {
		defer close(out)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
