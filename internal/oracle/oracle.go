// Package oracle is the boundary to the external text-generation service
// consulted for prompts with no scripted answer.
package oracle

import (
	"context"
	"errors"
)

// ErrDisabled is returned by the no-op oracle; callers treat it as "no
// answer" and fall through to the next resolution strategy.
var ErrDisabled = errors.New("oracle is not enabled")

// FunctionCall is a structured reply naming one of the recognized parse
// functions, with a JSON argument object.
type FunctionCall struct {
	Name      string
	Arguments string
}

// Reply is one oracle response: free text, or a structured function call.
type Reply struct {
	Text string
	Call *FunctionCall
}

// Oracle is the abstract contract of the text-generation collaborator. All
// failures are non-fatal to the session: callers log and degrade.
type Oracle interface {
	// Enabled reports whether the oracle is configured and usable.
	Enabled() bool
	// Chat sends one conversational prompt and returns the reply.
	Chat(ctx context.Context, prompt string) (*Reply, error)
	// ParseOutput asks the oracle to analyze one line of child output,
	// allowing it to reply with a structured call to a parse function.
	ParseOutput(ctx context.Context, line string) (*Reply, error)
	// Note sends fire-and-forget side-channel context (attention lines,
	// scripted-answer associations). The reply is discarded.
	Note(ctx context.Context, text string)
}

// Disabled is the no-op oracle used when no API key is configured. Sessions
// degrade to defaults and manual entry instead of failing.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Chat(context.Context, string) (*Reply, error) {
	return nil, ErrDisabled
}

func (Disabled) ParseOutput(context.Context, string) (*Reply, error) {
	return nil, ErrDisabled
}

func (Disabled) Note(context.Context, string) {}
