// Package call implements the client-side call state: the streaming
// transcript aggregator, the call lifecycle controller, and the
// press-to-talk gesture recognizer.
package call

import (
	"sync"
	"time"

	"github.com/chirpling-ai/chirpling/pkg/live"
)

// Role identifies the speaker of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one rendered line of the call transcript. Once Complete is
// true the text never changes again.
type Message struct {
	Role      Role
	Text      string
	CreatedAt time.Time
	Complete  bool
}

// Transcript folds live session events into an ordered message list.
//
// The fold is total: malformed or out-of-order events degrade to no-ops
// instead of corrupting earlier messages. The streaming assistant message is
// tracked by an explicit index rather than by matching the list tail, so at
// most one incomplete message can exist at a time.
//
// Every Apply carries the generation tag returned by Begin; events from a
// session that is no longer current are dropped, which keeps a late frame
// from a torn-down connection out of the fresh transcript.
type Transcript struct {
	mu  sync.Mutex
	now func() time.Time

	gen      uint64
	messages []Message
	open     int // index of the streaming assistant message, -1 when none
	typing   bool
}

func NewTranscript() *Transcript {
	return &Transcript{
		now:      time.Now,
		messages: make([]Message, 0, 16),
		open:     -1,
	}
}

// Begin starts a new session generation, clearing all state. The returned
// tag must accompany every Apply from that session's event stream.
func (t *Transcript) Begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.resetLocked()
	return t.gen
}

func (t *Transcript) resetLocked() {
	t.messages = t.messages[:0]
	t.open = -1
	t.typing = false
}

// Apply folds one event into the transcript. Events tagged with a stale
// generation are ignored. Event types the aggregator does not recognize are
// ignored too; other consumers of the same stream handle them.
func (t *Transcript) Apply(gen uint64, event live.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}

	switch e := event.(type) {
	case live.ConnectedEvent:
		// Reconnect within the same session: drop stale history. Clearing
		// an already-empty list is a no-op, so redelivery is safe.
		t.resetLocked()
	case live.UserTranscriptEvent:
		// Each completed utterance is a distinct turn, never merged with
		// the previous message.
		t.messages = append(t.messages, Message{
			Role:      RoleUser,
			Text:      e.Text,
			CreatedAt: t.now(),
			Complete:  true,
		})
	case live.AssistantDeltaEvent:
		if e.Delta == "" {
			return
		}
		if t.open < 0 {
			t.messages = append(t.messages, Message{
				Role:      RoleAssistant,
				Text:      e.Delta,
				CreatedAt: t.now(),
			})
			t.open = len(t.messages) - 1
			t.typing = true
			return
		}
		t.messages[t.open].Text += e.Delta
	case live.AssistantCompletedEvent:
		if t.open >= 0 {
			t.messages[t.open].Complete = true
			t.open = -1
		}
		t.typing = false
	}
}

// Messages returns a snapshot of the transcript in arrival order.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// AssistantTyping reports whether an assistant message is still streaming.
func (t *Transcript) AssistantTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}
