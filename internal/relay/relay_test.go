package relay

import (
	"io"
	"log/slog"
	"sync"

	"foodfortalk/internal/models"
)

// fakeConn records everything the relay delivers to one connection.
type fakeConn struct {
	mu          sync.Mutex
	events      []Event
	closed      bool
	closeReason string
}

func (c *fakeConn) Deliver(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeReason = reason
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) eventsOfType(t EventType) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) deliveriesOfContent(content string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Message != nil && ev.Message.Content == content {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func participant(id, name string) models.Participant {
	return models.Participant{ID: id, BlurredName: name}
}

// memorySink collects persisted messages for assertions.
type memorySink struct {
	mu     sync.Mutex
	saved  []models.Message
	keys   []string
	failed error
}

func (s *memorySink) SaveMessage(msg models.Message, conversationKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed != nil {
		return s.failed
	}
	s.saved = append(s.saved, msg)
	s.keys = append(s.keys, conversationKey)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}
