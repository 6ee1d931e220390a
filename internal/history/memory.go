package history

import (
	"sync"

	"querybot/internal/models"
)

// Memory holds per-session conversation buffers. Sessions are isolated:
// unrelated users never share a buffer. Each buffer is capped to the last
// maxTurns messages.
type Memory struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string][]models.Message
}

func NewMemory(maxTurns int) *Memory {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &Memory{maxTurns: maxTurns, sessions: make(map[string][]models.Message)}
}

// Append adds a turn to the session's buffer, evicting the oldest turns
// beyond the cap.
func (m *Memory) Append(session string, msg models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := append(m.sessions[session], msg)
	if len(buf) > m.maxTurns {
		buf = buf[len(buf)-m.maxTurns:]
	}
	m.sessions[session] = buf
}

// History returns a copy of the session's buffer in order.
func (m *Memory) History(session string) []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message(nil), m.sessions[session]...)
}

// Clear drops one session's buffer.
func (m *Memory) Clear(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, session)
}
