// Package history keeps short per-conversation transcripts in memory.
// Buffers are keyed by (username, channelID), created on first use, and
// capped so long-running channels cannot grow without bound.
package history

import (
	"fmt"
	"sync"

	"github.com/streamforge/streambot/internal/metrics"
)

// Role tags a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single transcript entry.
type Turn struct {
	Role    Role
	Content string
}

// DefaultCap is the default number of turns kept per conversation.
const DefaultCap = 20

// Store holds bounded conversation buffers for the process lifetime.
type Store struct {
	mu      sync.Mutex
	cap     int
	buffers map[string][]Turn
}

// New returns a Store keeping at most capacity turns per conversation.
// Non-positive capacity falls back to DefaultCap.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Store{
		cap:     capacity,
		buffers: make(map[string][]Turn),
	}
}

func key(username, channelID string) string {
	return fmt.Sprintf("%s:%s", username, channelID)
}

// Append records a turn for the conversation, evicting the oldest turn when
// the buffer is full.
func (s *Store) Append(username, channelID string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(username, channelID)
	buf, ok := s.buffers[k]
	if !ok {
		metrics.ActiveConversations.Inc()
	}
	buf = append(buf, Turn{Role: role, Content: content})
	if len(buf) > s.cap {
		buf = buf[len(buf)-s.cap:]
	}
	s.buffers[k] = buf
}

// Turns returns a copy of the conversation's transcript, oldest first.
func (s *Store) Turns(username, channelID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[key(username, channelID)]
	out := make([]Turn, len(buf))
	copy(out, buf)
	return out
}

// Len reports the number of turns stored for the conversation.
func (s *Store) Len(username, channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers[key(username, channelID)])
}

// Reset drops the conversation's buffer.
func (s *Store) Reset(username, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(username, channelID)
	if _, ok := s.buffers[k]; ok {
		delete(s.buffers, k)
		metrics.ActiveConversations.Dec()
	}
}
