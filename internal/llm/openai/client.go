// Package openai adapts the OpenAI Chat Completions API (and any
// OpenAI-compatible self-hosted server, e.g. llama.cpp/mlx_lm) to
// llm.Provider.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"lavis/internal/config"
	"lavis/internal/llm"
	"lavis/internal/observability"
)

type Client struct {
	sdk        sdk.Client
	model      string
	extra      map[string]any
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(c config.OpenAIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	opts = append(opts, option.WithHTTPClient(httpClient))

	return &Client{
		sdk:        sdk.NewClient(opts...),
		model:      c.Model,
		extra:      c.ExtraParams,
		baseURL:    c.BaseURL,
		apiKey:     c.APIKey,
		httpClient: httpClient,
	}
}

// Available reports whether a model is configured.
func (c *Client) Available() bool { return strings.TrimSpace(c.model) != "" }

// isSelfHosted reports whether this client targets a non-OpenAI endpoint
// (llama.cpp/mlx_lm), which lacks usage accounting and needs a fallback
// /tokenize call for token metrics.
func (c *Client) isSelfHosted() bool {
	return c.baseURL != "" && c.baseURL != "https://api.openai.com/v1"
}

// tokenizeCount calls a self-hosted server's /tokenize endpoint. Returns 0 on
// error (best-effort) so metrics emission never fails the request.
func (c *Client) tokenizeCount(ctx context.Context, text string) int {
	if !c.isSelfHosted() || strings.TrimSpace(text) == "" {
		return 0
	}
	base := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(c.baseURL), "/"), "/v1")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/tokenize", bytes.NewReader(mustJSON(map[string]any{"content": text})))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0
	}
	var parsed struct {
		Tokens []any `json:"tokens"`
	}
	if err := json.Unmarshal(rb, &parsed); err != nil {
		return 0
	}
	return len(parsed.Tokens)
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func buildPromptText(msgs []llm.Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		if i < len(msgs)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// removeUnsupportedSchema recursively deletes keys self-hosted llama.cpp
// servers reject (currently: "not").
func removeUnsupportedSchema(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	delete(in, "not")
	for k, v := range in {
		switch tv := v.(type) {
		case map[string]any:
			in[k] = removeUnsupportedSchema(tv)
		case []any:
			for idx, elem := range tv {
				if mm, ok := elem.(map[string]any); ok {
					tv[idx] = removeUnsupportedSchema(mm)
				}
			}
			in[k] = tv
		}
	}
	return in
}

func sanitizeToolSchemas(src []llm.ToolSchema) []llm.ToolSchema {
	if len(src) == 0 {
		return src
	}
	out := make([]llm.ToolSchema, 0, len(src))
	for _, s := range src {
		if s.Parameters != nil {
			cp := make(map[string]any, len(s.Parameters))
			for k, v := range s.Parameters {
				cp[k] = v
			}
			cleaned := removeUnsupportedSchema(cp)
			if len(cleaned) == 0 {
				s.Parameters = nil
			} else {
				s.Parameters = cleaned
			}
		}
		out = append(out, s)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func isEmptyArgsBytes(raw []byte) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "{}" || t == "null"
}

// Chat implements llm.Provider.Chat using OpenAI Chat Completions. A message
// carrying an inline image is sent as a multimodal content-part array on
// the user turn it belongs to.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.ChatResult, error) {
	effectiveModel := firstNonEmpty(model, c.model)
	log := observability.LoggerWithTrace(ctx)

	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(effectiveModel)}
	params.Messages = AdaptMessages(msgs)
	if len(tools) > 0 {
		if c.isSelfHosted() {
			params.Tools = AdaptSchemas(sanitizeToolSchemas(tools))
		} else {
			params.Tools = AdaptSchemas(tools)
		}
	}
	if len(c.extra) > 0 {
		if len(tools) == 0 {
			tmp := make(map[string]any, len(c.extra))
			for k, v := range c.extra {
				tmp[k] = v
			}
			delete(tmp, "parallel_tool_calls")
			params.SetExtraFields(tmp)
		} else {
			params.SetExtraFields(c.extra)
		}
	}

	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Chat", string(params.Model), len(tools), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Int("tools", len(tools)).Dur("duration", dur).Msg("chat_completion_error")
		span.RecordError(err)
		return llm.ChatResult{}, err
	}
	llm.LogRedactedResponse(ctx, comp.Choices)

	if c.isSelfHosted() {
		promptTokens := c.tokenizeCount(ctx, buildPromptText(msgs))
		var out llm.ChatResult
		if len(comp.Choices) > 0 {
			out = resultFromMessage(comp.Choices[0].Message)
		}
		completionTokens := c.tokenizeCount(ctx, out.Content)
		llm.RecordTokenAttributes(span, promptTokens, completionTokens, promptTokens+completionTokens)
		llm.RecordTokenMetrics(string(params.Model), promptTokens, completionTokens)
		log.Debug().Str("model", string(params.Model)).Dur("duration", dur).Msg("chat_completion_ok")
		return out, nil
	}

	llm.RecordTokenAttributes(span, int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens), int(comp.Usage.TotalTokens))
	llm.RecordTokenMetrics(string(params.Model), int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens))
	log.Debug().
		Str("model", string(params.Model)).
		Int("tools", len(tools)).
		Dur("duration", dur).
		Int("prompt_tokens", int(comp.Usage.PromptTokens)).
		Int("completion_tokens", int(comp.Usage.CompletionTokens)).
		Msg("chat_completion_ok")

	if len(comp.Choices) == 0 {
		return llm.ChatResult{}, nil
	}
	return resultFromMessage(comp.Choices[0].Message), nil
}

func resultFromMessage(msg sdk.ChatCompletionMessage) llm.ChatResult {
	out := llm.ChatResult{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			if isEmptyArgsBytes([]byte(v.Function.Arguments)) {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{Name: v.Function.Name, Args: json.RawMessage(v.Function.Arguments), ID: v.ID})
		case sdk.ChatCompletionMessageCustomToolCall:
			if isEmptyArgsBytes([]byte(v.Custom.Input)) {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{Name: v.Custom.Name, Args: json.RawMessage(v.Custom.Input), ID: v.ID})
		}
	}
	return out
}
