package oracle

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// FnParsePrompt extracts the prompt question from free text.
	FnParsePrompt = "parse_stdout_prompt_question"
	// FnParsePromptAndSuggestion extracts the prompt question and its
	// suggested default value from free text.
	FnParsePromptAndSuggestion = "parse_stdout_and_get_prompt_and_suggested_value"
)

var parseFunctions = []openai.FunctionDefinition{
	{
		Name:        FnParsePromptAndSuggestion,
		Description: "Parse the string and extract the prompt question and suggested default value",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"prompt": {
					"type": "string",
					"description": "Parsed output prompt question (alphanumeric, pascal case notation)"
				},
				"suggestion": {
					"type": "string",
					"description": "Suggested default value"
				}
			}
		}`),
	},
	{
		Name:        FnParsePrompt,
		Description: "Parse the string and extract the prompt question",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"prompt": {
					"type": "string",
					"description": "Parsed output prompt question (alphanumeric, pascal case notation)"
				}
			}
		}`),
	},
}

type parseArgs struct {
	Prompt     string `json:"prompt"`
	Suggestion string `json:"suggestion"`
}

// Invoke runs one of the recognized parse functions. Both are pure text
// transforms: a prompt-only parse answers with a bare newline (accept
// whatever the child suggests), a prompt-plus-suggestion parse answers with
// the suggested value.
func Invoke(call *FunctionCall) (string, error) {
	var args parseArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return "", fmt.Errorf("parse function arguments: %w", err)
	}

	switch call.Name {
	case FnParsePrompt:
		return "\n", nil
	case FnParsePromptAndSuggestion:
		return args.Suggestion, nil
	default:
		return "", fmt.Errorf("unrecognized parse function %q", call.Name)
	}
}
