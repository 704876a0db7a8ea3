package openai

import (
	"encoding/base64"

	sdk "github.com/openai/openai-go/v2"

	"lavis/internal/llm"
)

func base64Encode(data []byte) string { return base64.StdEncoding.EncodeToString(data) }

// AdaptSchemas converts internal llm.ToolSchema definitions into OpenAI SDK tool params.
func AdaptSchemas(schemas []llm.ToolSchema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		def := sdk.FunctionDefinitionParam{
			Name:        s.Name,
			Description: sdk.String(s.Description),
			Parameters:  s.Parameters,
		}
		out = append(out, sdk.ChatCompletionFunctionTool(def))
	}
	return out
}

// AdaptMessages converts portable llm.Message history to OpenAI SDK message
// params. A user message carrying an inline Image becomes a multimodal
// content-part array with a data: URL image part.
func AdaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			content := m.Content
			if content == "" {
				content = "You are a helpful assistant."
			}
			out = append(out, sdk.SystemMessage(content))
		case "user":
			out = append(out, userMessage(m))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				content := m.Content
				if content == "" {
					content = " "
				}
				out = append(out, sdk.AssistantMessage(content))
				continue
			}
			var asst sdk.ChatCompletionAssistantMessageParam
			content := m.Content
			if content == "" {
				content = " "
			}
			asst.Content.OfString = sdk.String(content)
			for _, tc := range m.ToolCalls {
				fn := sdk.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Arguments: string(tc.Args),
						Name:      tc.Name,
					},
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{OfFunction: &fn})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case "tool":
			content := m.Content
			if content == "" {
				content = `{"error": "empty tool response"}`
			}
			out = append(out, sdk.ToolMessage(content, m.ToolID))
		}
	}
	return out
}

func userMessage(m llm.Message) sdk.ChatCompletionMessageParamUnion {
	if m.Image == nil || len(m.Image.Data) == 0 {
		content := m.Content
		if content == "" {
			content = " "
		}
		return sdk.UserMessage(content)
	}

	var parts []sdk.ChatCompletionContentPartUnionParam
	if m.Content != "" {
		parts = append(parts, sdk.ChatCompletionContentPartUnionParam{
			OfText: &sdk.ChatCompletionContentPartTextParam{Text: m.Content},
		})
	}
	dataURL := "data:" + m.Image.MIMEType + ";base64," + base64Encode(m.Image.Data)
	parts = append(parts, sdk.ChatCompletionContentPartUnionParam{
		OfImageURL: &sdk.ChatCompletionContentPartImageParam{
			ImageURL: sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
		},
	})
	return sdk.ChatCompletionMessageParamUnion{
		OfUser: &sdk.ChatCompletionUserMessageParam{
			Content: sdk.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
		},
	}
}
