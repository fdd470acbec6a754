// Package events publishes ledger changes after they commit.
package events

import (
	"context"
	"sync"
)

// Publisher delivers messages to downstream consumers. Publishing happens
// after the database commit, so a failure never undoes a write; callers log
// it and move on.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// Noop drops every message. It is the default when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, *Message) error { return nil }

// Recorder keeps published messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Publish(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *msg)
	return nil
}

// Messages returns a copy of everything published so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
