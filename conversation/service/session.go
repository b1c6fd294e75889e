package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"characterchat/backend/ai"
	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/logger"

	"github.com/lithammer/shortuuid/v4"
)

// Streamer produces a streamed completion. *ai.Gateway implements it.
type Streamer interface {
	StreamChat(ctx context.Context, apiKey string, messages []ai.ChatMessage, onDelta func(fragment string)) (string, error)
}

// State is the derived phase of a session.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
)

// Snapshot is an immutable copy of the session's observable state.
type Snapshot struct {
	Version  uint64           `json:"version"`
	State    State            `json:"state"`
	Loading  bool             `json:"isLoading"`
	Error    string           `json:"error,omitempty"`
	Messages []models.Message `json:"messages"`
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator overrides message id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) { s.newID = newID }
}

// WithLogger sets the session logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithMetrics records send outcomes.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// flight is one in-progress request. Cleanup compares pointers so a stale
// flight never touches state owned by a newer one.
type flight struct {
	ctx         context.Context
	cancel      context.CancelFunc
	assistantID string
	started     time.Time
}

// Session is a live conversation with one character. The transcript lives
// only in memory. At most one reply is in flight at a time.
type Session struct {
	character models.Character
	apiKey    string
	streamer  Streamer
	log       *logger.Logger
	metrics   *Metrics
	now       func() time.Time
	newID     func() string

	mu        sync.Mutex
	messages  []models.Message
	loading   bool
	streaming bool
	lastErr   string
	current   *flight
	version   uint64
	observers map[int]func(Snapshot)
	nextObs   int
}

// NewSession starts an empty conversation with character using apiKey.
func NewSession(character models.Character, apiKey string, streamer Streamer, opts ...Option) (*Session, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoCredential
	}
	if streamer == nil {
		return nil, errors.New("streamer is required")
	}

	s := &Session{
		character: character,
		apiKey:    apiKey,
		streamer:  streamer,
		log:       logger.GetGlobal(),
		now:       time.Now,
		newID:     shortuuid.New,
		observers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("session").With("character_id", character.ID)
	return s, nil
}

// Character returns the character this session talks to.
func (s *Session) Character() models.Character {
	return s.character
}

// Send appends text as a user message and streams the reply into a new
// assistant message. It blocks until the reply completes, fails or is
// cancelled. Blank text or a reply already in flight make it a no-op.
func (s *Session) Send(ctx context.Context, text string) Result {
	s.mu.Lock()
	f, request, ok := s.beginLocked(ctx, text)
	if !ok {
		s.mu.Unlock()
		return Result{Status: StatusSkipped}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return s.run(f, request)
}

// Regenerate drops the last user message and everything after it, then
// sends that message again.
func (s *Session) Regenerate(ctx context.Context) Result {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return Result{Status: StatusSkipped}
	}

	idx := s.lastUserIndexLocked()
	if idx < 0 {
		s.mu.Unlock()
		return Result{Status: StatusSkipped}
	}

	text := s.messages[idx].Content
	previous := s.messages
	s.messages = append([]models.Message(nil), s.messages[:idx]...)

	f, request, ok := s.beginLocked(ctx, text)
	if !ok {
		s.messages = previous
		s.mu.Unlock()
		return Result{Status: StatusSkipped}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return s.run(f, request)
}

// Cancel stops the reply in flight, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.cancel()
	}
}

// Clear cancels any reply in flight and empties the transcript.
func (s *Session) Clear() {
	s.mu.Lock()
	if s.current != nil {
		s.current.cancel()
		s.current = nil
	}
	s.messages = nil
	s.lastErr = ""
	s.loading = false
	s.streaming = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copyLocked()
}

// OnChange registers fn to receive a snapshot after every state change.
// Snapshots are delivered outside the session lock; use Version to discard
// out-of-order deliveries. The returned func unregisters fn.
func (s *Session) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// beginLocked checks the single-flight guard and, when it passes, records
// the user message and the assistant placeholder. Caller holds mu.
func (s *Session) beginLocked(parent context.Context, text string) (*flight, []ai.ChatMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" || s.loading {
		return nil, nil, false
	}

	now := s.now()
	request := s.requestLocked(text)

	s.lastErr = ""
	s.messages = append(s.messages,
		models.Message{ID: s.newID(), Role: models.RoleUser, Content: text, Timestamp: now},
		models.Message{ID: s.newID(), Role: models.RoleAssistant, Timestamp: now},
	)

	ctx, cancel := context.WithCancel(parent)
	f := &flight{
		ctx:         ctx,
		cancel:      cancel,
		assistantID: s.messages[len(s.messages)-1].ID,
		started:     now,
	}
	s.current = f
	s.loading = true
	s.streaming = false
	return f, request, true
}

// requestLocked builds the outgoing messages: the system prompt, the
// transcript so far and the new user text.
func (s *Session) requestLocked(text string) []ai.ChatMessage {
	request := make([]ai.ChatMessage, 0, len(s.messages)+2)
	request = append(request, ai.ChatMessage{Role: models.RoleSystem, Content: ai.BuildSystemPrompt(&s.character)})
	for _, m := range s.messages {
		request = append(request, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return append(request, ai.ChatMessage{Role: models.RoleUser, Content: text})
}

func (s *Session) run(f *flight, request []ai.ChatMessage) (result Result) {
	var (
		content strings.Builder
		deltas  int
	)
	defer func() {
		f.cancel()
		s.metrics.record(f.ctx, result.Status, deltas, s.now().Sub(f.started))
	}()

	_, err := s.streamer.StreamChat(f.ctx, s.apiKey, request, func(fragment string) {
		deltas++
		content.WriteString(fragment)
		s.applyDelta(f, content.String())
	})
	return s.finish(f, content.String(), err)
}

func (s *Session) applyDelta(f *flight, cumulative string) {
	s.mu.Lock()
	if s.current != f {
		s.mu.Unlock()
		return
	}
	if idx := s.indexLocked(f.assistantID); idx >= 0 {
		s.messages[idx].Content = cumulative
	}
	s.streaming = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

// finish runs exactly once per flight and settles the placeholder.
func (s *Session) finish(f *flight, content string, err error) Result {
	s.mu.Lock()
	owned := s.current == f
	idx := s.indexLocked(f.assistantID)

	var result Result
	switch {
	case err == nil:
		if idx >= 0 {
			s.messages[idx].Content = content
			s.messages[idx].Timestamp = s.now()
		}
		result = Result{Status: StatusOK, Content: content}
	case isCancellation(f.ctx, err):
		s.removeLocked(idx)
		result = Result{Status: StatusCancelled}
	default:
		s.removeLocked(idx)
		if owned {
			s.lastErr = err.Error()
		}
		result = Result{Status: StatusFailed, Err: err}
	}

	if owned {
		s.current = nil
		s.loading = false
		s.streaming = false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	switch result.Status {
	case StatusFailed:
		s.log.Warn("Reply failed", "error", err.Error())
	case StatusCancelled:
		s.log.Debug("Reply cancelled")
	default:
		s.log.Debug("Reply completed", "length", len(content))
	}

	s.publish(snap)
	return result
}

func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}

func (s *Session) lastUserIndexLocked() int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == models.RoleUser {
			return i
		}
	}
	return -1
}

func (s *Session) indexLocked(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) removeLocked(idx int) {
	if idx < 0 {
		return
	}
	s.messages = append(s.messages[:idx:idx], s.messages[idx+1:]...)
}

func (s *Session) stateLocked() State {
	switch {
	case !s.loading:
		return StateIdle
	case s.streaming:
		return StateStreaming
	default:
		return StateSending
	}
}

func (s *Session) copyLocked() Snapshot {
	messages := make([]models.Message, len(s.messages))
	copy(messages, s.messages)
	return Snapshot{
		Version:  s.version,
		State:    s.stateLocked(),
		Loading:  s.loading,
		Error:    s.lastErr,
		Messages: messages,
	}
}

// snapshotLocked bumps the version and captures the observers to notify.
func (s *Session) snapshotLocked() pendingSnapshot {
	s.version++
	observers := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	return pendingSnapshot{snapshot: s.copyLocked(), observers: observers}
}

type pendingSnapshot struct {
	snapshot  Snapshot
	observers []func(Snapshot)
}

func (s *Session) publish(p pendingSnapshot) {
	for _, fn := range p.observers {
		fn(p.snapshot)
	}
}
