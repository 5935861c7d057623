package memory

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry in the conversation log.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a bounded, ordered append log of messages, rewritten to
// disk in full after every mutation. A missing or corrupt file loads as an
// empty history. An internal lock serializes mutations: turns append from
// their own goroutine while a clear request can arrive on a bus dispatch
// goroutine at any time.
type Conversation struct {
	path    string
	maxSize int
	log     *slog.Logger
	clock   func() time.Time

	mu      sync.Mutex
	history []Message
}

func Open(path string, maxSize int, log *slog.Logger) *Conversation {
	c := &Conversation{
		path:    path,
		maxSize: maxSize,
		log:     log.With(slog.String("component", "memory")),
		clock:   time.Now,
	}
	c.load()
	return c
}

func (c *Conversation) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		c.history = nil
		return
	}
	var history []Message
	if err := json.Unmarshal(data, &history); err != nil {
		c.log.Warn("memory file corrupt, starting empty", slog.String("error", err.Error()))
		c.history = nil
		return
	}
	c.history = history
	c.trim()
}

func (c *Conversation) save() {
	data, err := json.MarshalIndent(c.history, "", "  ")
	if err != nil {
		c.log.Error("failed to marshal memory", slog.String("error", err.Error()))
		return
	}
	if dir := filepath.Dir(c.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.log.Error("failed to create memory dir", slog.String("error", err.Error()))
			return
		}
	}
	// In-memory state stays authoritative when the write fails.
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		c.log.Error("failed to save memory", slog.String("error", err.Error()))
	}
}

func (c *Conversation) trim() {
	if len(c.history) > c.maxSize {
		trimmed := make([]Message, c.maxSize)
		copy(trimmed, c.history[len(c.history)-c.maxSize:])
		c.history = trimmed
	}
}

// Add appends a message, evicts the oldest entries beyond the cap, and
// persists the result.
func (c *Conversation) Add(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Message{Role: role, Content: content, Timestamp: c.clock()})
	c.trim()
	c.save()
}

// History returns a copy of the retained messages in original order.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

// Len reports the number of retained messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Clear drops all history and persists the empty log.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.save()
}
