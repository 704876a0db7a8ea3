// Package reasoning implements ReasoningLoop, the central "chat with
// screenshot" tool-calling algorithm. Grounded on internal/agent/engine.go's
// step loop (Engine.runLoop), generalized from a text-only RAG agent step
// into a multimodal, turn-scoped, visually-aware loop with per-tool
// adaptive waits and forced re-perception.
package reasoning

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"lavis/internal/capture"
	"lavis/internal/config"
	"lavis/internal/llm"
	"lavis/internal/memory"
	"lavis/internal/observability"
	"lavis/internal/persistence"
	"lavis/internal/skills"
	"lavis/internal/tools"
	turnpkg "lavis/internal/turn"
)

// screenshotFailureNotice is injected as a text-only observation when both
// the standard and forced recapture return no bytes: inject and continue,
// do not abort the turn.
const screenshotFailureNotice = "[observation] screenshot capture failed; continue reasoning about the prior state and consider retrying a capture-screen or wait tool."

// Loop is the reasoning engine. One Loop instance is shared by every
// reasoning invocation in a process; each Run call opens its own
// turn.Context rather than sharing one, so unrelated concurrent requests
// never see each other's "current" turn (turn.Context's own documented
// contract).
type Loop struct {
	chat      llm.Provider
	model     string
	system    string
	capturer  *capture.DedupCapturer
	registry  *tools.Registry
	mem       *memory.Manager
	execCtx   *skills.ExecutionContext
	cfg       config.ReasoningConfig
	waitTable map[string]time.Duration

	toolCallSeq uint64
}

// New builds a Loop. execCtx may be nil if skills are disabled; a nil
// execCtx simply never augments the system prompt with skill knowledge.
func New(chat llm.Provider, model, system string, capturer *capture.DedupCapturer, registry *tools.Registry, mem *memory.Manager, execCtx *skills.ExecutionContext, cfg config.ReasoningConfig) *Loop {
	return &Loop{
		chat:      chat,
		model:     model,
		system:    system,
		capturer:  capturer,
		registry:  registry,
		mem:       mem,
		execCtx:   execCtx,
		cfg:       cfg,
		waitTable: defaultWaitTable(),
	}
}

// defaultWaitTable is the per-tool adaptive post-action wait table. Tool
// names not present fall back to ReasoningConfig.ToolWaitDefault.
func defaultWaitTable() map[string]time.Duration {
	return map[string]time.Duration{
		"type-text":           1500 * time.Millisecond,
		"open-app":            2000 * time.Millisecond,
		"open-url":            2000 * time.Millisecond,
		"open-browser":        2000 * time.Millisecond,
		"execute-applescript": 1200 * time.Millisecond,
		"execute-shell":       1200 * time.Millisecond,
		"click":               800 * time.Millisecond,
		"double-click":        800 * time.Millisecond,
		"right-click":         800 * time.Millisecond,
		"drag":                1000 * time.Millisecond,
		"scroll":              600 * time.Millisecond,
		"open-file":           1500 * time.Millisecond,
		"wait":                300 * time.Millisecond,
	}
}

func (l *Loop) waitFor(toolName string) time.Duration {
	if d, ok := l.waitTable[toolName]; ok {
		return d
	}
	d := l.cfg.ToolWaitDefault
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	return d
}

// Run is the AgentRunner implementation skills.Service dispatches "agent:"
// commands to, and the entry point the HTTP surface's /api/agent/chat and
// /api/agent/task handlers call.
func (l *Loop) Run(ctx context.Context, userText string) (string, error) {
	return l.RunWithCap(ctx, userText, 0)
}

// RunWithCap runs the loop with an optional positive step cap (0 = no cap
// beyond the configured MaxSteps).
func (l *Loop) RunWithCap(ctx context.Context, userText string, stepCap int) (string, error) {
	if avail, ok := l.chat.(llm.Available); ok && !avail.Available() {
		return "the configured chat model is not available; check the provider API key and try again", nil
	}

	sessionKey, err := l.mem.CurrentSessionKey(ctx)
	if err != nil {
		// The loop never propagates a Go error past this boundary; it
		// returns a terminal string instead.
		return fmt.Sprintf("reasoning: could not resolve session: %v", err), nil
	}

	turnCtx := turnpkg.New()
	turnCtx.Begin(sessionKey)
	defer func() {
		ended, ok := turnCtx.End()
		if ok {
			l.mem.OnTurnEnd(ended)
		}
	}()

	return l.runWithRetry(ctx, turnCtx, sessionKey, userText, stepCap)
}

// runWithRetry retries the whole reasoning invocation under quota/rate-
// limit failure: classify by substring match on `429`/`RESOURCE_EXHAUSTED`,
// backoff doubles per attempt, default 3 attempts / base 2s. Non-quota
// failures share the same retry budget with the base (non-doubled) delay.
func (l *Loop) runWithRetry(ctx context.Context, turnCtx *turnpkg.Context, sessionKey, userText string, stepCap int) (string, error) {
	budget := l.cfg.RetryBudget
	if budget <= 0 {
		budget = 3
	}
	base := l.cfg.RetryBaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < budget; attempt++ {
		result, err := l.runOnce(ctx, turnCtx, sessionKey, userText, stepCap)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isQuotaError(err) {
			time.Sleep(base)
			continue
		}
		delay := base * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			var empty strings.Builder
			return l.cancelledResult(sessionKey, turnCtx, &empty)
		case <-time.After(delay):
		}
	}
	return fmt.Sprintf("reasoning: retry budget exhausted after %d attempts: %v", budget, lastErr), nil
}

// cancelledResult implements the loop's cooperative-cancellation contract:
// on a cancelled ctx, the loop never propagates ctx.Err() past Run/
// RunWithCap. It writes a "cancelled" tool-result marker, ends the turn,
// and returns whatever response text had accumulated so far.
func (l *Loop) cancelledResult(sessionKey string, turnCtx *turnpkg.Context, accumulated *strings.Builder) (string, error) {
	marker := persistence.Message{
		SessionKey: sessionKey,
		TurnID:     mustCurrentTurnID(turnCtx),
		Kind:       persistence.MessageToolResult,
		Content:    "cancelled",
	}
	if _, err := l.mem.SaveMessage(context.Background(), marker, llm.EstimateTokens("cancelled")); err != nil {
		observability.LoggerWithTrace(context.Background()).Warn().Err(err).Msg("reasoning: persist cancellation marker")
	}
	accumulated.WriteString("\n[cancelled]")
	return accumulated.String(), nil
}

func isQuotaError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED")
}

// runOnce performs one attempt of the loop's screenshot-capture,
// persist-user-message, chat/dispatch step sequence (no retry).
func (l *Loop) runOnce(ctx context.Context, turnCtx *turnpkg.Context, sessionKey, userText string, stepCap int) (string, error) {
	log := observability.LoggerWithTrace(ctx)

	capRes, capErr := l.capturer.Capture(ctx, capture.CaptureOptions{})
	if capErr == nil && capRes.Reused && len(capRes.Frame.Data) == 0 {
		if forced, ferr := l.capturer.Capture(ctx, capture.CaptureOptions{Force: true}); ferr == nil {
			capRes = forced
		} else {
			capErr = ferr
		}
	}

	userMsg := persistence.Message{
		SessionKey: sessionKey,
		TurnID:     mustCurrentTurnID(turnCtx),
		Kind:       persistence.MessageUser,
		Content:    userText,
	}
	var (
		savedUser  persistence.Message
		persistErr error
	)
	if capErr != nil || len(capRes.Frame.Data) == 0 {
		// Screenshot failure: inject a structured text-only observation
		// and continue reasoning rather than aborting the turn.
		userMsg.Content = userText + "\n" + screenshotFailureNotice
		savedUser, persistErr = l.mem.SaveMessage(ctx, userMsg, llm.EstimateTokens(userMsg.Content))
	} else {
		turnCtx.RecordImage(capRes.ImageID)
		savedUser, persistErr = l.mem.SaveMessageWithImage(ctx, userMsg, llm.EstimateTokens(userText), capRes.ImageID, capRes.Frame.Data, "image/png")
	}
	if persistErr != nil {
		return "", fmt.Errorf("reasoning: persist user message: %w", persistErr)
	}
	_ = savedUser

	systemPrompt := l.system
	if l.execCtx != nil {
		if body, ok := l.execCtx.Take(); ok && body != "" {
			systemPrompt = systemPrompt + "\n\n# Active skill knowledge\n" + body
		}
	}

	promptMsgs := append([]llm.Message{{Role: "system", Content: systemPrompt}}, l.mem.Messages()...)

	toolSchemas := tools.ToSchemas(l.registry.Specifications())

	var accumulated strings.Builder
	maxSteps := stepCap
	if maxSteps <= 0 {
		maxSteps = l.cfg.MaxSteps
	}
	if maxSteps <= 0 {
		maxSteps = 50
	}

	for step := 0; step < maxSteps; step++ {
		res, err := l.chat.Chat(ctx, promptMsgs, toolSchemas, l.model)
		if err != nil {
			if ctx.Err() != nil {
				return l.cancelledResult(sessionKey, turnCtx, &accumulated)
			}
			return "", fmt.Errorf("reasoning: chat step %d: %w", step, err)
		}

		assistantMsg := llm.Message{Role: "assistant", Content: res.Content, ToolCalls: l.ensureToolCallIDs(promptMsgs, res.ToolCalls)}
		promptMsgs = append(promptMsgs, assistantMsg)
		if _, err := l.persistAssistant(ctx, sessionKey, turnCtx, assistantMsg); err != nil {
			log.Warn().Err(err).Msg("reasoning: persist assistant message")
		}

		if len(assistantMsg.ToolCalls) == 0 {
			if assistantMsg.Content != "" {
				accumulated.WriteString(assistantMsg.Content)
			}
			return accumulated.String(), nil
		}

		var sawComplete, sawVisualImpact bool
		var dispatchedNames []string
		for _, tc := range assistantMsg.ToolCalls {
			resultStr := l.registry.Execute(ctx, tc.Name, tc.Args)
			dispatchedNames = append(dispatchedNames, tc.Name)
			if tc.Name == tools.CompleteToolName {
				sawComplete = true
			}
			if l.registry.IsVisualImpactTool(tc.Name) {
				sawVisualImpact = true
			}

			toolMsg := llm.Message{Role: "tool", Content: resultStr, ToolID: tc.ID}
			promptMsgs = append(promptMsgs, toolMsg)
			toolResultMsg := persistence.Message{
				SessionKey: sessionKey,
				TurnID:     mustCurrentTurnID(turnCtx),
				Kind:       persistence.MessageToolResult,
				ToolCallID: tc.ID,
				ToolResult: resultStr,
				Content:    resultStr,
			}
			if _, err := l.mem.SaveMessage(ctx, toolResultMsg, llm.EstimateTokens(resultStr)); err != nil {
				log.Warn().Err(err).Msg("reasoning: persist tool result")
			}
			if strings.Contains(resultStr, tools.FailureMarker) {
				accumulated.WriteString(resultStr)
				accumulated.WriteString("\n")
			}
		}

		if sawComplete {
			return accumulated.String(), nil
		}

		if sawVisualImpact {
			wait := time.Duration(0)
			for _, name := range dispatchedNames {
				if w := l.waitFor(name); w > wait {
					wait = w
				}
			}
			select {
			case <-ctx.Done():
				return l.cancelledResult(sessionKey, turnCtx, &accumulated)
			case <-time.After(wait):
			}

			recap, rerr := l.capturer.Capture(ctx, capture.CaptureOptions{Force: true, SkipDedup: true})
			if rerr != nil || len(recap.Frame.Data) == 0 {
				obs := persistence.Message{
					SessionKey: sessionKey,
					TurnID:     mustCurrentTurnID(turnCtx),
					Kind:       persistence.MessageSystemObservation,
					Content:    screenshotFailureNotice,
				}
				if _, err := l.mem.SaveMessage(ctx, obs, llm.EstimateTokens(screenshotFailureNotice)); err != nil {
					log.Warn().Err(err).Msg("reasoning: persist screenshot-failure observation")
				}
				promptMsgs = append(promptMsgs, llm.Message{Role: "user", Content: screenshotFailureNotice})
			} else {
				turnCtx.RecordImage(recap.ImageID)
				obsText := fmt.Sprintf(
					"[observation] executed: %s. Consult the conversation history before repeating an identical action a third time; if the last two calls were the same and had no effect, try a different approach.",
					strings.Join(dispatchedNames, ", "),
				)
				obs := persistence.Message{
					SessionKey: sessionKey,
					TurnID:     mustCurrentTurnID(turnCtx),
					Kind:       persistence.MessageSystemObservation,
					Content:    obsText,
				}
				saved, err := l.mem.SaveMessageWithImage(ctx, obs, llm.EstimateTokens(obsText), recap.ImageID, recap.Frame.Data, "image/png")
				if err != nil {
					log.Warn().Err(err).Msg("reasoning: persist visual observation")
				}
				_ = saved
				promptMsgs = append(promptMsgs, llm.Message{
					Role:    "user",
					Content: obsText,
					Image:   &llm.ImageContent{ImageID: recap.ImageID, MIMEType: "image/png", Data: recap.Frame.Data},
				})
			}
		}
	}

	accumulated.WriteString("\n[max iterations reached]")
	return accumulated.String(), nil
}

func (l *Loop) persistAssistant(ctx context.Context, sessionKey string, turnCtx *turnpkg.Context, msg llm.Message) (persistence.Message, error) {
	var toolCalls []persistence.ToolCallRequest
	for _, tc := range msg.ToolCalls {
		toolCalls = append(toolCalls, persistence.ToolCallRequest{ID: tc.ID, Name: tc.Name, ArgsJSON: string(tc.Args)})
	}
	pm := persistence.Message{
		SessionKey: sessionKey,
		TurnID:     mustCurrentTurnID(turnCtx),
		Kind:       persistence.MessageAssistant,
		Content:    msg.Content,
		ToolCalls:  toolCalls,
	}
	return l.mem.SaveMessage(ctx, pm, llm.EstimateTokens(msg.Content))
}

// ensureToolCallIDs assigns a stable id to any tool call the model
// returned without one, avoiding a collision with an id already used
// earlier in this same prompt (grounded on Engine.ensureToolCallIDs).
func (l *Loop) ensureToolCallIDs(msgs []llm.Message, calls []llm.ToolCall) []llm.ToolCall {
	used := make(map[string]struct{}, len(calls))
	for _, m := range msgs {
		if m.Role != "assistant" {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.ID != "" {
				used[tc.ID] = struct{}{}
			}
		}
	}
	for i := range calls {
		id := calls[i].ID
		if id == "" {
			id = l.nextToolCallID()
		}
		for {
			if _, taken := used[id]; !taken {
				break
			}
			id = l.nextToolCallID()
		}
		calls[i].ID = id
		used[id] = struct{}{}
	}
	return calls
}

func (l *Loop) nextToolCallID() string {
	seq := atomic.AddUint64(&l.toolCallSeq, 1)
	return fmt.Sprintf("call-%d", seq)
}

func mustCurrentTurnID(turnCtx *turnpkg.Context) string {
	t, ok := turnCtx.Current()
	if !ok {
		return ""
	}
	return t.ID
}
