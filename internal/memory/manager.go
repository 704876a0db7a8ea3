package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"lavis/internal/coldstorage"
	"lavis/internal/config"
	"lavis/internal/llm"
	"lavis/internal/persistence"
	turnpkg "lavis/internal/turn"
)

// Manager is the session-level coordinator tying ConversationMemory,
// VisualCompactor, and the persistent store together.
type Manager struct {
	mu         sync.Mutex
	sessionKey string

	store      persistence.Store
	mem        *ConversationMemory
	compactor  *VisualCompactor
	cold       coldstorage.ColdStorage
	summarizer llm.Provider // optional; nil disables summary compression
	cfg        config.MemoryConfig

	compactCh chan turnpkg.Turn
}

// NewManager builds a Manager and starts its single serial compaction
// worker: OnTurnEnd enqueues the ended turn onto a buffered channel rather
// than compacting inline, so it never blocks the reasoning loop's
// return waiting for a prior compaction to finish.
func NewManager(store persistence.Store, mem *ConversationMemory, compactor *VisualCompactor, cold coldstorage.ColdStorage, summarizer llm.Provider, cfg config.MemoryConfig) *Manager {
	m := &Manager{
		store:      store,
		mem:        mem,
		compactor:  compactor,
		cold:       cold,
		summarizer: summarizer,
		cfg:        cfg,
		compactCh:  make(chan turnpkg.Turn, 64),
	}
	go m.compactionWorker()
	return m
}

func (m *Manager) compactionWorker() {
	for t := range m.compactCh {
		_ = m.compactor.Compact(context.Background(), t, m.mem, m.store)
	}
}

// CurrentSessionKey returns the active session key, creating its row on
// first use.
func (m *Manager) CurrentSessionKey(ctx context.Context) (string, error) {
	m.mu.Lock()
	key := m.sessionKey
	m.mu.Unlock()
	if key != "" {
		return key, nil
	}

	newKey := uuid.NewString()
	if _, err := m.store.CreateSession(ctx, newKey); err != nil {
		return "", fmt.Errorf("memory: create session: %w", err)
	}

	m.mu.Lock()
	if m.sessionKey == "" {
		m.sessionKey = newKey
	}
	key = m.sessionKey
	m.mu.Unlock()
	return key, nil
}

func toLLMMessage(msg persistence.Message, imageData []byte, imageMIME string) llm.Message {
	out := llm.Message{Role: roleFor(msg.Kind), Content: msg.Content, ToolID: msg.ToolCallID}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Args: []byte(tc.ArgsJSON)})
	}
	if msg.ImageID != "" {
		out.Image = &llm.ImageContent{ImageID: msg.ImageID, MIMEType: imageMIME, Data: imageData}
	}
	return out
}

func roleFor(kind persistence.MessageKind) string {
	switch kind {
	case persistence.MessageUser:
		return "user"
	case persistence.MessageAssistant:
		return "assistant"
	case persistence.MessageToolResult:
		return "tool"
	case persistence.MessageSystemObservation:
		return "user"
	default:
		return "user"
	}
}

// SaveMessage persists msg (without an image) and mirrors it into the
// in-process window.
func (m *Manager) SaveMessage(ctx context.Context, msg persistence.Message, tokenEstimate int) (persistence.Message, error) {
	return m.save(ctx, msg, tokenEstimate, nil, "")
}

// SaveMessageWithImage persists msg alongside an inline screenshot
// (imageID/data/mime) and mirrors both into the in-process window.
func (m *Manager) SaveMessageWithImage(ctx context.Context, msg persistence.Message, tokenEstimate int, imageID string, imageData []byte, mime string) (persistence.Message, error) {
	msg.ImageID = imageID
	return m.save(ctx, msg, tokenEstimate, imageData, mime)
}

func (m *Manager) save(ctx context.Context, msg persistence.Message, tokenEstimate int, imageData []byte, mime string) (persistence.Message, error) {
	sessionKey, err := m.CurrentSessionKey(ctx)
	if err != nil {
		return persistence.Message{}, err
	}
	msg.SessionKey = sessionKey
	msg.TokenEstimate = tokenEstimate

	saved, err := m.store.AppendMessage(ctx, msg)
	if err != nil {
		return persistence.Message{}, fmt.Errorf("memory: append message: %w", err)
	}
	if err := m.store.TouchSession(ctx, sessionKey, 1, tokenEstimate); err != nil {
		// A touch failure is swallowed without logging: the in-process
		// window is still authoritative for this turn.
		_ = err
	}

	m.mem.Append(saved.TurnID, saved.ID, toLLMMessage(saved, imageData, mime))
	return saved, nil
}

// Messages returns an ordered snapshot of the current prompt window,
// delegating to the underlying ConversationMemory. ReasoningLoop calls
// this directly when assembling a chat request.
func (m *Manager) Messages() []llm.Message {
	return m.mem.Messages()
}

// OnTurnEnd enqueues t for asynchronous visual compaction. Non-blocking:
// if the queue is momentarily full, the turn is dropped from compaction
// (its images remain inline, which is safe — just uncompacted) rather
// than blocking the caller.
func (m *Manager) OnTurnEnd(t turnpkg.Turn) {
	select {
	case m.compactCh <- t:
	default:
	}
}

// ManageMemory performs periodic upkeep: pruning expired cold-storage
// blobs and, when the session's estimated token usage exceeds
// ContextWindowTokens-ReserveBufferTokens, compressing the oldest portion
// of the window into a single summary message via the configured
// summarizer model. Returns the count of cold-storage blobs pruned and
// whether summary compression ran.
func (m *Manager) ManageMemory(ctx context.Context) (imagesCleanedCount int, compressionPerformed bool, err error) {
	if m.cold != nil && m.cfg.ContextWindowTokens > 0 {
		imagesCleanedCount, err = m.cold.Cleanup(ctx, 30)
		if err != nil {
			return imagesCleanedCount, false, fmt.Errorf("memory: cold storage cleanup: %w", err)
		}
	}

	sessionKey, err := m.CurrentSessionKey(ctx)
	if err != nil {
		return imagesCleanedCount, false, err
	}
	sess, err := m.store.GetSession(ctx, sessionKey)
	if err != nil {
		return imagesCleanedCount, false, err
	}

	threshold := m.cfg.ContextWindowTokens - m.cfg.ReserveBufferTokens
	if threshold <= 0 || sess.TokenEstimate <= threshold || m.summarizer == nil {
		return imagesCleanedCount, false, nil
	}

	if err := m.compressOldestChunk(ctx, sessionKey); err != nil {
		return imagesCleanedCount, false, err
	}
	return imagesCleanedCount, true, nil
}

// compressOldestChunk replaces every window message except the last
// MinKeepLastMessages with a single system summary message produced by the
// summarizer model. The cut is moved earlier while it would fall on a
// tool-result, so an assistant tool-call message is never summarized away
// from its results. It does nothing when MinKeepLastMessages is <= 0 or
// not smaller than the window.
func (m *Manager) compressOldestChunk(ctx context.Context, sessionKey string) error {
	msgs := m.mem.Messages()
	keepLast := m.cfg.MinKeepLastMessages
	if keepLast <= 0 || keepLast >= len(msgs) {
		return nil
	}
	cut := len(msgs) - keepLast
	for cut > 0 && msgs[cut].Role == "tool" {
		cut--
	}
	toSummarize := msgs[:cut]
	if len(toSummarize) == 0 {
		return nil
	}

	prompt := []llm.Message{
		{Role: "system", Content: "Summarize the following conversation history concisely, preserving any decisions, facts, and open tasks."},
	}
	prompt = append(prompt, toSummarize...)

	model := m.cfg.SummaryModel
	res, err := m.summarizer.Chat(ctx, prompt, nil, model)
	if err != nil {
		return fmt.Errorf("memory: summarize: %w", err)
	}

	summaryMsg := persistence.Message{
		SessionKey: sessionKey,
		Kind:       persistence.MessageSystemObservation,
		Content:    res.Content,
	}
	saved, err := m.store.AppendMessage(ctx, summaryMsg)
	if err != nil {
		return fmt.Errorf("memory: save summary: %w", err)
	}

	m.mem.ReplacePrefix(len(toSummarize), saved.ID, llm.Message{Role: "system", Content: res.Content})
	return nil
}

// ClearWindow empties the in-process prompt window without rotating the
// session key, unlike ResetSession which also allocates a new session.
func (m *Manager) ClearWindow() {
	m.mem.Clear()
}

// ResetSession clears the in-process window and allocates a fresh session
// key; prior rows in the store remain untouched.
func (m *Manager) ResetSession(ctx context.Context) (string, error) {
	m.mem.Clear()

	newKey := uuid.NewString()
	if _, err := m.store.CreateSession(ctx, newKey); err != nil {
		return "", fmt.Errorf("memory: reset session: %w", err)
	}
	m.mu.Lock()
	m.sessionKey = newKey
	m.mu.Unlock()
	return newKey, nil
}
