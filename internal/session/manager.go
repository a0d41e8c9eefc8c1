// Package session owns per-session conversation state: the UI-facing render
// log and the engine-facing canonical history, plus the dispatcher that turns
// the engine's live item stream into ordered render records.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/penlab/workpen/internal/engine"
	redisstore "github.com/penlab/workpen/internal/store/redis"
)

// ErrSessionNotFound is returned when a session is not found.
var ErrSessionNotFound = errors.New("session: not found")

// ErrTurnInProgress is returned when a turn is submitted while another turn
// is still running on the same session.
var ErrTurnInProgress = errors.New("session: turn already in progress")

// Publisher abstracts the pub/sub publish operation for render events.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// TurnRunner abstracts the engine turn loop.
type TurnRunner interface {
	Run(ctx context.Context, h engine.History, userText string, onItem func(engine.Item)) (engine.History, error)
}

// Session holds one conversation's state. The render log is append-only and
// lives for the session's lifetime; the canonical history is an opaque
// engine serialization, replaced wholesale after each completed turn and
// never hand-edited.
type Session struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	mu      sync.Mutex
	entries []Entry
	history engine.History
	busy    bool
}

// appendEntry assigns the next sequence number and appends under the lock.
func (s *Session) appendEntry(role Role, content string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{
		Seq:       len(s.entries) + 1,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.entries = append(s.entries, e)
	return e
}

// Entries returns a stable snapshot of the render log from offset, at most
// limit entries (limit <= 0 means all remaining).
func (s *Session) Entries(offset, limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset < 0 || offset >= len(s.entries) {
		return nil
	}
	rest := s.entries[offset:]
	if limit > 0 && limit < len(rest) {
		rest = rest[:limit]
	}
	out := make([]Entry, len(rest))
	copy(out, rest)
	return out
}

// EntryCount returns the current render-log length.
func (s *Session) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Busy reports whether a turn is currently running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Manager owns all sessions in the process. Sessions are fully independent;
// no state is shared between them beyond the manager map itself.
type Manager struct {
	runner TurnRunner
	pubsub Publisher

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	order    []uuid.UUID

	done chan struct{}
}

func NewManager(runner TurnRunner, pubsub Publisher) *Manager {
	return &Manager{
		runner:   runner,
		pubsub:   pubsub,
		sessions: make(map[uuid.UUID]*Session),
		done:     make(chan struct{}),
	}
}

// Shutdown signals background turns to stop publishing.
func (m *Manager) Shutdown() {
	close(m.done)
}

// Create registers a new empty session.
func (m *Manager) Create() *Session {
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.order = append(m.order, s.ID)
	m.mu.Unlock()

	log.Info().Str("session_id", s.ID.String()).Msg("session created")
	return s
}

// Get looks up a session by ID.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("session.Manager.Get(%s): %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// List returns all sessions in creation order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

// StartTurn validates the session, reserves it for one turn, and runs the
// turn in the background. It fails fast with ErrTurnInProgress when another
// turn holds the reservation; the caller surfaces that to the user instead
// of queueing.
func (m *Manager) StartTurn(id uuid.UUID, userText string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return fmt.Errorf("session.Manager.StartTurn(%s): %w", id, ErrTurnInProgress)
	}
	s.busy = true
	s.mu.Unlock()

	// The turn deliberately outlives the HTTP request that submitted it.
	// No timeout and no mid-turn cancellation are exposed; a hung command
	// blocks this goroutine until process-level intervention.
	go m.runTurn(context.Background(), s, userText)

	return nil
}

// RunTurn executes one user turn synchronously. Exposed for tests and for
// callers that want to block until the turn settles.
func (m *Manager) RunTurn(ctx context.Context, id uuid.UUID, userText string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return fmt.Errorf("session.Manager.RunTurn(%s): %w", id, ErrTurnInProgress)
	}
	s.busy = true
	s.mu.Unlock()

	m.runTurn(ctx, s, userText)
	return nil
}

// runTurn drives one user turn: user entry first, then one render entry per
// streamed engine item in emission order, then the history replacement.
func (m *Manager) runTurn(ctx context.Context, s *Session, userText string) {
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	m.emit(ctx, s, RoleUser, userText)

	s.mu.Lock()
	snapshot := s.history
	s.mu.Unlock()

	next, err := m.runner.Run(ctx, snapshot, userText, func(item engine.Item) {
		role, content := renderItem(item)
		m.emit(ctx, s, role, content)
	})
	if err != nil {
		// The whole turn fails; no partial result is committed to the
		// canonical history.
		log.Error().Err(err).Str("session_id", s.ID.String()).Msg("turn failed")
		if errors.Is(err, engine.ErrTurnBudgetExceeded) {
			m.emit(ctx, s, RoleError, "The agent exceeded its turn budget and the turn was aborted.")
		} else {
			m.emit(ctx, s, RoleError, "The turn failed: "+err.Error())
		}
		return
	}

	// Replace, never concatenate: the engine's serialization already encodes
	// the structured form including tool-call linkage.
	s.mu.Lock()
	s.history = next
	s.mu.Unlock()
}

// emit appends a render entry and publishes it on the session channel.
func (m *Manager) emit(ctx context.Context, s *Session, role Role, content string) {
	e := s.appendEntry(role, content)

	select {
	case <-m.done:
		return
	default:
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.pubsub.Publish(pubCtx, redisstore.SessionChannel(s.ID), payload); err != nil {
		log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to publish render entry")
	}
}
