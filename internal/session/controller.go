// Package session orchestrates the client core: it owns the identity and the
// relay lifecycle, and wires relay subscriptions into the conversation store
// and the presence tracker. Identity acquisition opens the transport and
// performs the join handshake; identity loss tears the transport down and
// discards all volatile state. Persisted conversations survive across
// sessions since ids are durable.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/driftchat/client/internal/chat"
	"github.com/driftchat/client/internal/directory"
	"github.com/driftchat/client/internal/model"
	"github.com/driftchat/client/internal/presence"
	"github.com/driftchat/client/internal/storage"
	"github.com/driftchat/client/internal/transport"
)

// DefaultJoinWait bounds how long Begin waits for the relay connection
// before giving up on the join handshake. The session stays usable either
// way; the relay keeps retrying on its own.
const DefaultJoinWait = 10 * time.Second

// Controller binds identity, transport, store and tracker into one session.
type Controller struct {
	relay    transport.Relay
	store    *chat.Store
	tracker  *presence.Tracker
	roster   *directory.Roster
	kv       storage.KV
	joinWait time.Duration

	mu        sync.Mutex
	current   *model.User
	disposers []func()
}

// NewController wires a session over the given collaborators. No connection
// is made until an identity is acquired.
func NewController(relay transport.Relay, store *chat.Store, tracker *presence.Tracker, roster *directory.Roster, kv storage.KV) *Controller {
	return &Controller{
		relay:    relay,
		store:    store,
		tracker:  tracker,
		roster:   roster,
		kv:       kv,
		joinWait: DefaultJoinWait,
	}
}

// CurrentUser returns the active identity, if any.
func (c *Controller) CurrentUser() (model.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.User{}, false
	}
	return *c.current, true
}

// SignUp acquires an identity (remote or local fallback) and begins the
// session with it.
func (c *Controller) SignUp(ctx context.Context, params directory.UserParams) model.User {
	user := c.roster.CreateUser(ctx, params)
	c.Begin(ctx, user)
	return user
}

// Resume restores a persisted identity and begins the session with it.
// Returns false when no identity was persisted.
func (c *Controller) Resume(ctx context.Context) (model.User, bool) {
	var user model.User
	ok, err := c.kv.Load(ctx, storage.KeyCurrentUser, &user)
	if err != nil {
		log.Printf("[session] load identity: %v", err)
		return model.User{}, false
	}
	if !ok {
		return model.User{}, false
	}
	c.Begin(ctx, user)
	return user, true
}

// Begin activates the identity, connects the relay, performs the join
// handshake once the connection is established, and routes inbound events
// into the conversation store and presence tracker. Joins are re-issued on
// every (re)establishment since relay membership is connection-scoped.
func (c *Controller) Begin(ctx context.Context, user model.User) {
	c.mu.Lock()
	c.current = &user
	c.mu.Unlock()

	// Beginning again with listeners still registered would double-route
	// every inbound event.
	c.removeListeners()

	if err := c.kv.Save(ctx, storage.KeyCurrentUser, &user); err != nil {
		log.Printf("[session] persist identity: %v", err)
	}

	disposers := []func(){
		c.relay.OnConnected(func() {
			c.relay.Join(user.ID)
		}),
		c.relay.OnMessage(func(ev transport.MessageEvent) {
			// An actual message supersedes any typing state of its sender.
			c.tracker.ClearTyping(ev.FromUserID)
			c.store.ApplyInbound(context.Background(), ev)
		}),
		c.relay.OnUserOnline(c.tracker.SetOnline),
		c.relay.OnUserOffline(c.tracker.SetOffline),
		c.relay.OnTyping(c.tracker.SetTyping),
		c.relay.OnStopTyping(c.tracker.ClearTyping),
	}
	c.mu.Lock()
	c.disposers = disposers
	c.mu.Unlock()

	c.relay.Connect(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, c.joinWait)
	defer cancel()
	if err := c.relay.WaitConnected(waitCtx); err != nil {
		log.Printf("[session] relay not ready, continuing offline: %v", err)
	}
}

// End clears the identity, disconnects the relay (which clears every
// registered listener), and discards the volatile presence and typing state.
// Conversations remain persisted.
func (c *Controller) End(ctx context.Context) {
	if err := c.kv.Delete(ctx, storage.KeyCurrentUser); err != nil {
		log.Printf("[session] clear identity: %v", err)
	}
	c.teardown()
}

// Suspend tears the session down like End but keeps the persisted identity,
// so a later Resume picks it up again. This is the teardown for a process
// exiting, as opposed to a user logging out.
func (c *Controller) Suspend() {
	c.teardown()
}

func (c *Controller) teardown() {
	c.mu.Lock()
	c.current = nil
	c.disposers = nil
	c.mu.Unlock()

	c.relay.Disconnect()
	c.store.ResetGroupRouting()
	c.tracker.Reset()
}

// removeListeners disposes every relay listener this controller registered.
func (c *Controller) removeListeners() {
	c.mu.Lock()
	disposers := c.disposers
	c.disposers = nil
	c.mu.Unlock()
	for _, dispose := range disposers {
		dispose()
	}
}

// UpdateProfile pushes profile changes and refreshes the persisted identity.
// A no-op with no active identity.
func (c *Controller) UpdateProfile(ctx context.Context, params directory.UserParams) (model.User, bool) {
	self, ok := c.CurrentUser()
	if !ok {
		return model.User{}, false
	}

	updated := c.roster.UpdateUser(ctx, self, params)
	c.mu.Lock()
	c.current = &updated
	c.mu.Unlock()
	if err := c.kv.Save(ctx, storage.KeyCurrentUser, &updated); err != nil {
		log.Printf("[session] persist identity: %v", err)
	}
	return updated, true
}

// StartDirectChat opens (or finds) the direct conversation with otherID.
// Returns "" with no active identity.
func (c *Controller) StartDirectChat(ctx context.Context, otherID string) string {
	self, ok := c.CurrentUser()
	if !ok {
		return ""
	}
	return c.store.StartDirectChat(ctx, self.ID, otherID)
}

// StartRandomChat matches the identity with a random peer. Returns
// ("", false) with no active identity or when no peer is available.
func (c *Controller) StartRandomChat(ctx context.Context) (string, bool) {
	self, ok := c.CurrentUser()
	if !ok {
		return "", false
	}
	return c.store.StartRandomChat(ctx, self.ID)
}

// SendMessage appends and dispatches a text message. A no-op with no active
// identity.
func (c *Controller) SendMessage(ctx context.Context, chatID, content string) {
	self, ok := c.CurrentUser()
	if !ok {
		return
	}
	c.store.SendMessage(ctx, chatID, content, self.ID)
}

// SendTyping emits a best-effort typing indicator to the peer.
func (c *Controller) SendTyping(otherUserID string) {
	self, ok := c.CurrentUser()
	if !ok {
		return
	}
	c.relay.SendTyping(self.ID, otherUserID)
}

// SendStopTyping emits a best-effort stop-typing indicator to the peer.
func (c *Controller) SendStopTyping(otherUserID string) {
	self, ok := c.CurrentUser()
	if !ok {
		return
	}
	c.relay.SendStopTyping(self.ID, otherUserID)
}

// OpenDirectChat returns a history page for the conversation with otherID.
func (c *Controller) OpenDirectChat(ctx context.Context, otherID, cursor string, limit int) []model.Message {
	self, ok := c.CurrentUser()
	if !ok {
		return nil
	}
	return c.store.OpenDirectChat(ctx, self.ID, otherID, cursor, limit)
}

// OpenGroupChat returns a history page for the group conversation and routes
// the group's realtime channel into the store.
func (c *Controller) OpenGroupChat(ctx context.Context, groupID, cursor string, limit int) []model.Message {
	if _, ok := c.CurrentUser(); !ok {
		return nil
	}
	return c.store.OpenGroupChat(ctx, groupID, cursor, limit)
}
