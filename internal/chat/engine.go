// Package chat is the streaming conversation engine.
//
// The engine owns the message log. A send resolves an agent, enriches the
// user's text with scene context, and streams the assistant reply into a
// placeholder message. At most one streaming session is live: a new send
// cancels the previous one before issuing its own request.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/context-assistant/three.js/internal/completion"
	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/mention"
	"github.com/context-assistant/three.js/internal/types"
)

var (
	// ErrNoAgentSelected: no explicit agent matched and no default is configured.
	ErrNoAgentSelected = errors.New("no agent selected")
	// ErrStreamIncomplete: the transport ended without a terminal frame.
	ErrStreamIncomplete = errors.New("stream ended before completion")
)

// CancelledMarker replaces an assistant reply that was cancelled before any content arrived.
const CancelledMarker = "_Generation cancelled._"

// DefaultWindowSize is the number of log entries sent and persisted.
const DefaultWindowSize = 10

// State of the engine's most recent send.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateStreaming
	StateAborted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateStreaming:
		return "streaming"
	case StateAborted:
		return "aborted"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ===== COLLABORATORS =====

// FrameStream is a consumable completion stream.
type FrameStream interface {
	Next() (completion.Frame, bool)
	Err() error
	Terminated() bool
	Close() error
}

// Streamer opens completion streams.
type Streamer interface {
	Stream(ctx context.Context, req completion.ChatRequest) (FrameStream, error)
}

type clientStreamer struct{ c *completion.Client }

func (s clientStreamer) Stream(ctx context.Context, req completion.ChatRequest) (FrameStream, error) {
	st, err := s.c.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ClientStreamer adapts a completion client.
func ClientStreamer(c *completion.Client) Streamer { return clientStreamer{c} }

// AgentSource looks up agent profiles.
type AgentSource interface {
	Get(id string) (types.AgentProfile, bool)
	Default() (types.AgentProfile, bool)
}

// WindowStore persists the trailing message window.
type WindowStore interface {
	Load(ctx context.Context) ([]types.Message, error)
	Save(ctx context.Context, window []types.Message) error
}

// Enricher resolves scene mentions for a message. hints, when non-empty,
// replace the mentions extracted from content.
type Enricher interface {
	Enrich(ctx context.Context, content string, hints []string) []mention.Descriptor
}

// ===== ENGINE =====

// Config wires an engine.
type Config struct {
	Transport  Streamer
	Agents     AgentSource
	Store      WindowStore // optional
	Enricher   Enricher    // optional
	WindowSize int
	Persist    bool
}

// SendRequest is one user turn.
type SendRequest struct {
	Content      string
	AgentID      string
	OnDelta      func(delta string)
	MentionHints []string
}

type session struct {
	token *CancelToken
	msgID int64
}

// Engine is safe for concurrent use. Its lock is never held across a frame read.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	log       []types.Message
	nextID    int64
	session   *session
	state     State
	lastStats *completion.Stats

	saveMu sync.Mutex
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	return &Engine{cfg: cfg, nextID: 1}
}

// Restore loads the persisted window. IDs continue after the highest restored ID.
func (e *Engine) Restore(ctx context.Context) error {
	if e.cfg.Store == nil || !e.cfg.Persist {
		return nil
	}
	msgs, err := e.cfg.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore window: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append([]types.Message(nil), msgs...)
	for _, m := range msgs {
		if m.ID >= e.nextID {
			e.nextID = m.ID + 1
		}
	}
	logging.Chat("restored %d messages", len(msgs))
	return nil
}

// SendMessage runs one turn. Cancellation is not an error. Other failures
// are written into the assistant message and returned.
func (e *Engine) SendMessage(ctx context.Context, req SendRequest) error {
	agent, ok := e.resolveAgent(req.AgentID)
	if !ok {
		return ErrNoAgentSelected
	}

	e.mu.Lock()
	if e.session == nil {
		e.state = StateResolving
	}
	e.mu.Unlock()

	var descriptors []mention.Descriptor
	if e.cfg.Enricher != nil {
		descriptors = e.cfg.Enricher.Enrich(ctx, req.Content, req.MentionHints)
	}
	content := Enrich(req.Content, descriptors)

	e.mu.Lock()
	e.appendLocked(types.Message{Role: types.RoleUser, Content: content})
	placeholder := e.appendLocked(types.Message{
		Role:      types.RoleAssistant,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Avatar:    agent.Avatar,
	})
	outgoing := e.outgoingLocked(BuildSystemPrompt(agent), placeholder.ID)

	if e.session != nil {
		logging.ChatDebug("superseding session for message %d", e.session.msgID)
		e.session.token.Cancel()
	}
	sess := &session{token: NewCancelToken(ctx), msgID: placeholder.ID}
	e.session = sess
	e.state = StateStreaming
	e.mu.Unlock()

	logging.Chat("send agent=%s model=%s window=%d mentions=%d", agent.ID, agent.Model, len(outgoing)-1, len(descriptors))
	timer := logging.StartTimer(logging.CategoryChat, "stream")
	stats, err := e.consume(sess, completion.ChatRequest{
		Model:    agent.Model,
		Messages: outgoing,
		Sampling: agent.Sampling,
	}, req.OnDelta)
	timer.Stop()

	// A reply that reached its terminal frame is complete even if a cancel
	// lands afterwards.
	cancelled := err != nil && sess.token.Cancelled()
	sess.token.release()
	return e.finish(ctx, sess, stats, err, cancelled)
}

func (e *Engine) consume(sess *session, req completion.ChatRequest, onDelta func(string)) (*completion.Stats, error) {
	stream, err := e.cfg.Transport.Stream(sess.token.Context(), req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for {
		f, ok := stream.Next()
		if !ok {
			break
		}
		if f.Delta != "" {
			e.appendDelta(sess.msgID, f.Delta)
			e.persist(sess.token.Context())
			if onDelta != nil {
				onDelta(f.Delta)
			}
		}
		if f.Done {
			return f.Stats, nil
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}
	if !stream.Terminated() {
		return nil, ErrStreamIncomplete
	}
	return nil, nil
}

func (e *Engine) finish(ctx context.Context, sess *session, stats *completion.Stats, err error, cancelled bool) error {
	e.mu.Lock()
	ours := e.session == sess
	if ours {
		e.session = nil
	}

	var result error
	switch {
	case cancelled:
		e.updateLocked(sess.msgID, func(m *types.Message) {
			if m.Content == "" {
				m.Content = CancelledMarker
			}
		})
		if ours {
			e.state = StateAborted
		}
		logging.Chat("message %d cancelled", sess.msgID)
	case err != nil:
		e.updateLocked(sess.msgID, func(m *types.Message) {
			if m.Content == "" {
				m.Content = "Error: " + err.Error()
			} else {
				m.Content += "\n\nError: " + err.Error()
			}
		})
		if ours {
			e.state = StateErrored
		}
		result = err
		logging.ChatError("message %d failed: %v", sess.msgID, err)
	default:
		if ours {
			e.state = StateIdle
			e.lastStats = stats
		}
		if stats != nil {
			logging.Chat("message %d complete: %d tokens, %.1f tok/s", sess.msgID, stats.TotalTokens(), stats.TokensPerSecond())
		}
	}
	e.mu.Unlock()

	// The send's own context may be gone; the final save must still happen.
	e.persist(context.WithoutCancel(ctx))
	return result
}

// Abort cancels the live session, if any.
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.token.Cancel()
	}
}

// ActiveToken returns the live session's token, or nil when idle.
func (e *Engine) ActiveToken() *CancelToken {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.token
}

// State returns the state of the most recent send.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastStats returns the stats of the last completed reply.
func (e *Engine) LastStats() *completion.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStats
}

// Messages returns a copy of the log.
func (e *Engine) Messages() []types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Message(nil), e.log...)
}

// Window returns the trailing window that is persisted.
func (e *Engine) Window() []types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.windowLocked()
}

// Clear cancels any live session and empties the log. IDs keep increasing.
func (e *Engine) Clear(ctx context.Context) {
	e.mu.Lock()
	if e.session != nil {
		e.session.token.Cancel()
	}
	e.log = nil
	e.state = StateIdle
	e.lastStats = nil
	e.mu.Unlock()
	e.persist(ctx)
}

// ===== INTERNALS =====

func (e *Engine) resolveAgent(id string) (types.AgentProfile, bool) {
	if e.cfg.Agents == nil {
		return types.AgentProfile{}, false
	}
	if id != "" {
		return e.cfg.Agents.Get(id)
	}
	return e.cfg.Agents.Default()
}

func (e *Engine) appendLocked(m types.Message) types.Message {
	m.ID = e.nextID
	e.nextID++
	m.Timestamp = time.Now()
	e.log = append(e.log, m)
	return m
}

func (e *Engine) updateLocked(id int64, fn func(*types.Message)) {
	for i := len(e.log) - 1; i >= 0; i-- {
		if e.log[i].ID == id {
			fn(&e.log[i])
			return
		}
	}
}

func (e *Engine) appendDelta(id int64, delta string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateLocked(id, func(m *types.Message) { m.Content += delta })
}

// outgoingLocked builds the request messages: system prompt, then the last
// window entries excluding the placeholder.
func (e *Engine) outgoingLocked(systemPrompt string, placeholderID int64) []completion.ChatMessage {
	history := make([]types.Message, 0, len(e.log))
	for _, m := range e.log {
		if m.ID != placeholderID {
			history = append(history, m)
		}
	}
	if len(history) > e.cfg.WindowSize {
		history = history[len(history)-e.cfg.WindowSize:]
	}

	out := make([]completion.ChatMessage, 0, len(history)+1)
	out = append(out, completion.ChatMessage{Role: string(types.RoleSystem), Content: systemPrompt})
	for _, m := range history {
		out = append(out, completion.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (e *Engine) windowLocked() []types.Message {
	start := 0
	if len(e.log) > e.cfg.WindowSize {
		start = len(e.log) - e.cfg.WindowSize
	}
	return append([]types.Message(nil), e.log[start:]...)
}

func (e *Engine) persist(ctx context.Context) {
	if e.cfg.Store == nil || !e.cfg.Persist {
		return
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	window := e.windowLocked()
	e.mu.Unlock()

	if err := e.cfg.Store.Save(ctx, window); err != nil && !errors.Is(err, context.Canceled) {
		logging.ChatWarn("persist window: %v", err)
	}
}

// Summary renders a one-line description of a message for logs and CLIs.
func Summary(m types.Message) string {
	content := strings.ReplaceAll(m.Content, "\n", " ")
	if len(content) > 60 {
		content = content[:57] + "..."
	}
	return fmt.Sprintf("#%d %s: %s", m.ID, m.Role, content)
}
