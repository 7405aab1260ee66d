// Package history keeps the bounded conversation shown in the chat widget
// and replayed as prompt context.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/nachoal/local-vlm-go/prompt"
)

// DefaultMaxTurns bounds a conversation when no limit is given
const DefaultMaxTurns = 50

// Entry is a turn with the time it was recorded
type Entry struct {
	Turn      prompt.Turn
	Timestamp time.Time
}

// Stats summarizes a conversation
type Stats struct {
	Turns      int       `json:"turns"`
	UserTurns  int       `json:"user_turns"`
	Images     int       `json:"images"`
	Characters int       `json:"characters"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Conversation is an in-memory, size-bounded list of turns. When full, the
// oldest turns are dropped first. It is safe for concurrent use.
type Conversation struct {
	mu       sync.RWMutex
	entries  []Entry
	maxTurns int
	now      func() time.Time
}

// NewConversation creates a conversation holding at most maxTurns turns.
// maxTurns <= 0 selects DefaultMaxTurns.
func NewConversation(maxTurns int) *Conversation {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Conversation{
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// Append records turns in order
func (c *Conversation) Append(turns ...prompt.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range turns {
		c.entries = append(c.entries, Entry{Turn: t, Timestamp: c.now()})
	}

	if extra := len(c.entries) - c.maxTurns; extra > 0 {
		// copy so the dropped prefix can be collected
		c.entries = append([]Entry(nil), c.entries[extra:]...)
	}
}

// AddExchange records a user turn and the assistant's reply
func (c *Conversation) AddExchange(user prompt.Turn, reply string) {
	c.Append(user, prompt.AssistantText(reply))
}

// Turns returns a snapshot of the turns, oldest first
func (c *Conversation) Turns() []prompt.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	turns := make([]prompt.Turn, len(c.entries))
	for i, e := range c.entries {
		turns[i] = e.Turn
	}
	return turns
}

// Entries returns a snapshot of the timestamped turns
func (c *Conversation) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]Entry(nil), c.entries...)
}

// Len returns the number of stored turns
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MaxTurns returns the bound
func (c *Conversation) MaxTurns() int {
	return c.maxTurns
}

// Clear drops every turn
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Stats computes summary counters
func (c *Conversation) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s Stats
	s.Turns = len(c.entries)
	for _, e := range c.entries {
		if e.Turn.Role == prompt.RoleUser {
			s.UserTurns++
		}
		s.Images += len(e.Turn.Attachments())
		s.Characters += len([]rune(e.Turn.Text()))
	}
	if len(c.entries) > 0 {
		s.StartedAt = c.entries[0].Timestamp
		s.UpdatedAt = c.entries[len(c.entries)-1].Timestamp
	}
	return s
}

// Title returns a short title from the first user turn
func (c *Conversation) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.Turn.Role != prompt.RoleUser {
			continue
		}
		content := e.Turn.Text()
		if content == "" {
			continue
		}
		// Take first 50 characters or until newline
		if idx := strings.IndexByte(content, '\n'); idx != -1 {
			content = content[:idx]
		}
		if r := []rune(content); len(r) > 50 {
			content = string(r[:47]) + "..."
		}
		return content
	}

	return "New conversation"
}
