// Package presence derives the online and typing sets from relay events.
// Both sets are fully volatile: push-driven, rebuilt from events only, never
// persisted. Presence is a best-effort hint, not a consistency guarantee.
package presence

import "sync"

// Tracker holds the online user set and the typing map.
type Tracker struct {
	mu     sync.Mutex
	online map[string]struct{}
	typing map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		online: make(map[string]struct{}),
		typing: make(map[string]struct{}),
	}
}

// SetOnline records a presence-up event.
func (t *Tracker) SetOnline(userID string) {
	t.mu.Lock()
	t.online[userID] = struct{}{}
	t.mu.Unlock()
}

// SetOffline records a presence-down event. A user going offline is also no
// longer typing.
func (t *Tracker) SetOffline(userID string) {
	t.mu.Lock()
	delete(t.online, userID)
	delete(t.typing, userID)
	t.mu.Unlock()
}

// SetTyping records a typing-start event.
func (t *Tracker) SetTyping(userID string) {
	t.mu.Lock()
	t.typing[userID] = struct{}{}
	t.mu.Unlock()
}

// ClearTyping records a typing-stop event. It is also invoked when the peer
// delivers an actual message, since the relay does not imply stop-typing on
// send.
func (t *Tracker) ClearTyping(userID string) {
	t.mu.Lock()
	delete(t.typing, userID)
	t.mu.Unlock()
}

// IsOnline reports whether the user is currently known to be online.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

// IsTyping reports whether the user is currently typing.
func (t *Tracker) IsTyping(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[userID]
	return ok
}

// Online returns a snapshot of the online user ids.
func (t *Tracker) Online() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	return out
}

// Reset discards all volatile state; called when the session ends.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.online = make(map[string]struct{})
	t.typing = make(map[string]struct{})
	t.mu.Unlock()
}
