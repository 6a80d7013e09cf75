package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

const (
	assistantContext = "You are a command line application that produces only valid JSON syntax it does not conversate just generates JSON output. " +
		"The property keys of the JSON response are in camel case syntax and their values should be randomized."

	assistantContextCli = "You are a command line application that accepts JSON input. " +
		"You produce only text plain short responses without a conversation or explanation. " +
		"You are fed with an initial JSON object. " +
		"When you are asked to set a property you should answer with the value of that property taken from the original JSON object"

	observerContext = "You are a command line application observer. Your job is to watch stdin and stdout and analize what data was exchanged between the user and the application."
)

// completer is the slice of the OpenAI client the oracle uses. Tests swap in
// a fake.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client is a conversation-carrying oracle backed by the OpenAI chat
// completion API.
type Client struct {
	api    completer
	model  string
	logger *slog.Logger

	mu       sync.Mutex
	messages []openai.ChatCompletionMessage
}

// NewClient builds an oracle from an API key. The session context string, if
// non-empty, is appended to the conversation before the first exchange.
func NewClient(apiKey, sessionContext string, logger *slog.Logger) *Client {
	c := &Client{
		api:    openai.NewClient(apiKey),
		model:  openai.GPT3Dot5Turbo,
		logger: logger,
		messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: assistantContextCli},
		},
	}
	if sessionContext != "" {
		c.messages = append(c.messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser, Content: sessionContext,
		})
	}
	return c
}

// FromEnv builds an oracle from the OPENAI_API_KEY environment variable, or
// the no-op oracle when the variable is absent.
func FromEnv(sessionContext string, logger *slog.Logger) Oracle {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		logger.Debug("OPENAI_API_KEY not set, oracle disabled")
		return Disabled{}
	}
	return NewClient(key, sessionContext, logger)
}

func (c *Client) Enabled() bool { return true }

func (c *Client) defaults() openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.5,
		MaxTokens:   256,
		TopP:        1,
	}
}

// Chat sends one conversational prompt, carrying the full message history.
// The reply is appended to the history on success.
func (c *Client) Chat(ctx context.Context, prompt string) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sid := uuid.New().String()[:8]
	c.logger.Debug("oracle request", "sid", sid, "prompt", prompt)

	req := c.defaults()
	req.Messages = append(append([]openai.ChatCompletionMessage{}, c.messages...),
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("oracle chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("oracle chat: empty response")
	}

	msg := resp.Choices[0].Message
	c.logger.Debug("oracle response", "sid", sid, "content", msg.Content)

	c.messages = append(c.messages,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content},
	)

	return replyFromMessage(msg), nil
}

// ParseOutput asks the model to analyze one line of child output with the
// two parse functions available, letting it reply with a structured call.
func (c *Client) ParseOutput(ctx context.Context, line string) (*Reply, error) {
	req := c.defaults()
	req.Messages = []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: observerContext},
		{Role: openai.ChatMessageRoleUser, Content: line},
	}
	req.Functions = parseFunctions
	req.FunctionCall = "auto"

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("oracle parse: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("oracle parse: empty response")
	}

	return replyFromMessage(resp.Choices[0].Message), nil
}

// Note pushes side-channel context into the conversation history without
// surfacing failures: a lost note never aborts a session.
func (c *Client) Note(ctx context.Context, text string) {
	if _, err := c.Chat(ctx, text); err != nil {
		c.logger.Debug("oracle note failed", "error", err)
	}
}

func replyFromMessage(msg openai.ChatCompletionMessage) *Reply {
	r := &Reply{Text: msg.Content}
	if msg.FunctionCall != nil {
		r.Call = &FunctionCall{
			Name:      msg.FunctionCall.Name,
			Arguments: msg.FunctionCall.Arguments,
		}
	}
	return r
}
