package chatcompletion

import (
	"github.com/inspirepan/copilot"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

const emptyToolOutput = "<system-reminder>Tool ran without output or errors</system-reminder>"

// BuildParams converts a provider request to Chat Completions params.
// Model and generation options are left for the caller.
func BuildParams(req copilot.ProviderRequest, useCacheControl bool) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{}

	if req.SystemPrompt != "" {
		if useCacheControl {
			textPart := openai.ChatCompletionContentPartTextParam{Text: req.SystemPrompt}
			textPart.SetExtraFields(map[string]any{
				"cache_control": map[string]any{"type": "ephemeral"},
			})
			params.Messages = append(params.Messages, openai.SystemMessage([]openai.ChatCompletionContentPartTextParam{textPart}))
		} else {
			params.Messages = append(params.Messages, openai.SystemMessage(req.SystemPrompt))
		}
	}

	for _, msg := range req.History {
		switch msg.Role {
		case copilot.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case copilot.RoleUser:
			params.Messages = append(params.Messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(msg.Content),
			}))
		case copilot.RoleAssistant:
			// The API rejects assistant turns with neither content nor tool calls.
			if msg.Content == "" && len(msg.ToolCalls) == 0 {
				continue
			}
			params.Messages = append(params.Messages, convertAssistantMessage(msg))
		case copilot.RoleTool:
			params.Messages = append(params.Messages, convertToolMessage(msg))
		}
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, convertTool(tool))
	}
	if len(params.Tools) > 0 {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
		params.ParallelToolCalls = openai.Bool(true)
	}

	if useCacheControl {
		addCacheControlToLastMessage(params.Messages)
	}
	return params
}

// addCacheControlToLastMessage marks the last text part of the last user
// message as cacheable.
func addCacheControlToLastMessage(messages []openai.ChatCompletionMessageParamUnion) {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := &messages[i]
		if msg.OfUser == nil {
			continue
		}
		parts := msg.OfUser.Content.OfArrayOfContentParts
		for j := len(parts) - 1; j >= 0; j-- {
			if parts[j].OfText != nil {
				parts[j].OfText.SetExtraFields(map[string]any{
					"cache_control": map[string]any{"type": "ephemeral"},
				})
				return
			}
		}
		return
	}
}

func convertAssistantMessage(m copilot.Message) openai.ChatCompletionMessageParamUnion {
	msg := openai.ChatCompletionAssistantMessageParam{}
	if m.Content != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(m.Content),
		}
	}
	for _, tc := range m.ToolCalls {
		args := string(tc.ArgsJSON)
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: args,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func convertToolMessage(m copilot.Message) openai.ChatCompletionMessageParamUnion {
	content := m.Content
	if content == "" {
		content = emptyToolOutput
	}
	return openai.ToolMessage(content, m.ToolCallID)
}

func convertTool(d copilot.ToolDescriptor) openai.ChatCompletionToolUnionParam {
	schema := d.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
		Name:        d.Name,
		Description: openai.String(d.Description),
		Parameters:  shared.FunctionParameters(schema),
	})
}
