// Package chat owns the authoritative in-memory set of conversations and
// their message sequences. It reconciles local send intents and inbound
// relay events into consistent per-conversation state: idempotent
// conversation creation, at most one direct conversation per participant
// pair, append-only monotonic message order, and persistence on every write.
package chat

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftchat/client/internal/directory"
	"github.com/driftchat/client/internal/metrics"
	"github.com/driftchat/client/internal/model"
	"github.com/driftchat/client/internal/protocol"
	"github.com/driftchat/client/internal/storage"
	"github.com/driftchat/client/internal/transport"
)

// Sender is the slice of the relay the store needs for outbound dispatch and
// per-group routing.
type Sender interface {
	SendMessage(req transport.SendRequest)
	SubscribeGroup(groupID string, fn func(transport.MessageEvent))
}

// History is the slice of the directory client the store needs for history
// pages and random matching.
type History interface {
	OpenGroupChat(ctx context.Context, groupID, cursor string, limit int) ([]model.Message, error)
	OpenOneToOneChat(ctx context.Context, userID, otherUserID, cursor string, limit int) ([]model.Message, error)
	OpenRandomChat(ctx context.Context, userID string) (*directory.RandomMatch, error)
}

// PeerDirectory supplies random-chat candidates and records matched peers.
type PeerDirectory interface {
	Users() []model.User
	AddUser(ctx context.Context, user model.User)
}

// Store is the conversation reconciliation core. Its collections are mutated
// only by its own operations; all entry points are safe for concurrent use
// and appends within one conversation are totally ordered by lock
// acquisition.
type Store struct {
	relay   Sender
	history History
	peers   PeerDirectory
	kv      storage.KV

	mu        sync.Mutex
	chats     []model.Chat
	groupSubs map[string]bool // groups this store already routes
}

// New returns an empty store wired to its collaborators.
func New(relay Sender, history History, peers PeerDirectory, kv storage.KV) *Store {
	return &Store{
		relay:     relay,
		history:   history,
		peers:     peers,
		kv:        kv,
		groupSubs: make(map[string]bool),
	}
}

// Load restores the persisted conversation directory.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.kv.Load(ctx, storage.KeyChats, &s.chats); err != nil {
		return err
	}
	metrics.ActiveChats.Set(float64(len(s.chats)))
	return nil
}

// Chats returns a snapshot of all conversations.
func (s *Store) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

// Chat returns the conversation with the given id.
func (s *Store) Chat(id string) (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chats {
		if s.chats[i].ID == id {
			return s.chats[i], true
		}
	}
	return model.Chat{}, false
}

// DirectChatID derives the deterministic conversation id for a participant
// pair; the pair is sorted so both orders yield the same id.
func DirectChatID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return fmt.Sprintf("chat_%s_%s", pair[0], pair[1])
}

// GroupChatID derives the conversation id bound to a group.
func GroupChatID(groupID string) string {
	return "chat_group_" + groupID
}

// StartDirectChat returns the id of the direct conversation between selfID
// and otherID, creating it when absent. The operation is idempotent: the
// per-pair uniqueness invariant is guaranteed by both the lookup and the
// deterministic id. Returns "" when selfID is empty.
func (s *Store) StartDirectChat(ctx context.Context, selfID, otherID string) string {
	if selfID == "" || otherID == "" {
		return ""
	}

	s.mu.Lock()
	if existing := s.pairChatLocked(selfID, otherID); existing != nil {
		id := existing.ID
		s.mu.Unlock()
		return id
	}

	chat := model.Chat{
		ID:           DirectChatID(selfID, otherID),
		Type:         model.ChatDirect,
		Participants: []string{selfID, otherID},
		Messages:     []model.Message{},
		UpdatedAt:    time.Now(),
	}
	s.chats = append(s.chats, chat)
	metrics.ActiveChats.Set(float64(len(s.chats)))
	s.mu.Unlock()

	s.persist(ctx)
	return chat.ID
}

// StartRandomChat matches selfID with a random peer. The remote match is
// preferred and its conversation id adopted; on remote failure a peer is
// picked uniformly among known users that do not already share a
// conversation with self. Returns ("", false) when no candidate exists —
// a normal outcome, not a fault.
func (s *Store) StartRandomChat(ctx context.Context, selfID string) (string, bool) {
	if selfID == "" {
		return "", false
	}

	if match, err := s.history.OpenRandomChat(ctx, selfID); err == nil {
		s.peers.AddUser(ctx, match.MatchedUser)
		return s.adoptRandomMatch(ctx, selfID, match), true
	} else {
		log.Printf("[chat] remote random match failed, picking locally: %v", err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("open-random-chat").Inc()
	}

	var candidates []model.User
	for _, u := range s.peers.Users() {
		if u.ID == selfID || s.hasPairChat(selfID, u.ID) {
			continue
		}
		candidates = append(candidates, u)
	}
	if len(candidates) == 0 {
		return "", false
	}

	pick := candidates[rand.Intn(len(candidates))]
	return s.StartDirectChat(ctx, selfID, pick.ID), true
}

// adoptRandomMatch creates the matched conversation under the remote id, or
// returns the existing pair conversation when one is already held locally.
func (s *Store) adoptRandomMatch(ctx context.Context, selfID string, match *directory.RandomMatch) string {
	s.mu.Lock()
	if existing := s.pairChatLocked(selfID, match.MatchedUser.ID); existing != nil {
		id := existing.ID
		s.mu.Unlock()
		return id
	}

	id := match.ConversationID
	if id == "" {
		id = DirectChatID(selfID, match.MatchedUser.ID)
	}
	s.chats = append(s.chats, model.Chat{
		ID:           id,
		Type:         model.ChatRandom,
		Participants: []string{selfID, match.MatchedUser.ID},
		Messages:     []model.Message{},
		UpdatedAt:    time.Now(),
	})
	metrics.ActiveChats.Set(float64(len(s.chats)))
	s.mu.Unlock()

	s.persist(ctx)
	return id
}

// SendMessage appends a fresh text message to the conversation, persists the
// updated set, and dispatches it over the relay. The local append is
// unconditional (optimistic) — delivery is neither awaited nor guaranteed.
// Empty content, an unknown conversation, or a missing identity make the
// call a no-op.
func (s *Store) SendMessage(ctx context.Context, chatID, content, selfID string) {
	if selfID == "" || content == "" {
		return
	}

	msg := model.Message{
		ID:        newMessageID(),
		SenderID:  selfID,
		Content:   content,
		Timestamp: time.Now(),
		Type:      model.MessageText,
	}

	s.mu.Lock()
	chat := s.chatLocked(chatID)
	if chat == nil {
		s.mu.Unlock()
		log.Printf("[chat] send to unknown conversation %s dropped", chatID)
		return
	}
	appendLocked(chat, msg)
	req := transport.SendRequest{
		ID:         msg.ID,
		FromUserID: selfID,
		Message:    content,
		Timestamp:  msg.Timestamp,
	}
	if chat.Type == model.ChatGroup {
		req.Kind = protocol.KindGroup
		req.GroupID = chat.GroupID
	} else {
		req.Kind = protocol.KindPrivate
		req.ToUserID = chat.OtherParticipant(selfID)
	}
	s.mu.Unlock()

	s.persist(ctx)
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	s.relay.SendMessage(req)
}

// ApplyInbound reconciles one inbound relay event into the matching
// conversation: the pair conversation for a private event, the group-bound
// conversation for a group event. Events for conversations not yet known
// locally are dropped with a diagnostic — a documented limitation, never an
// error.
func (s *Store) ApplyInbound(ctx context.Context, ev transport.MessageEvent) {
	msg := model.Message{
		ID:        ev.ID,
		SenderID:  ev.FromUserID,
		Content:   ev.Body,
		Timestamp: ev.Timestamp,
		Type:      model.MessageText,
	}
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.mu.Lock()
	var chat *model.Chat
	if ev.Kind == protocol.KindGroup || ev.GroupID != "" {
		chat = s.groupChatLocked(ev.GroupID)
	} else {
		chat = s.pairChatLocked(ev.FromUserID, ev.ToUserID)
	}
	if chat == nil {
		s.mu.Unlock()
		log.Printf("[chat] inbound message %s dropped: no conversation (from=%s to=%s group=%s)",
			msg.ID, ev.FromUserID, ev.ToUserID, ev.GroupID)
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}
	appendLocked(chat, msg)
	s.mu.Unlock()

	s.persist(ctx)
	metrics.MessagesTotal.WithLabelValues("received").Inc()
}

// OpenGroupChat ensures the group's conversation exists, routes the group's
// realtime channel into this store, and returns a history page from the
// directory; on remote failure it falls back to the full locally held
// sequence.
func (s *Store) OpenGroupChat(ctx context.Context, groupID, cursor string, limit int) []model.Message {
	s.ensureGroupChat(ctx, groupID)

	s.mu.Lock()
	subscribed := s.groupSubs[groupID]
	if !subscribed {
		s.groupSubs[groupID] = true
	}
	s.mu.Unlock()
	if !subscribed {
		s.relay.SubscribeGroup(groupID, func(ev transport.MessageEvent) {
			s.ApplyInbound(context.Background(), ev)
		})
	}

	if msgs, err := s.history.OpenGroupChat(ctx, groupID, cursor, limit); err == nil {
		return msgs
	} else {
		log.Printf("[chat] group history for %s unavailable, using local: %v", groupID, err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("open-group-chat").Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if chat := s.groupChatLocked(groupID); chat != nil {
		return copyMessages(chat.Messages)
	}
	return nil
}

// OpenDirectChat returns a history page for the one-to-one conversation with
// otherID; on remote failure it falls back to the full locally held
// sequence.
func (s *Store) OpenDirectChat(ctx context.Context, selfID, otherID, cursor string, limit int) []model.Message {
	if selfID == "" {
		return nil
	}

	if msgs, err := s.history.OpenOneToOneChat(ctx, selfID, otherID, cursor, limit); err == nil {
		return msgs
	} else {
		log.Printf("[chat] direct history with %s unavailable, using local: %v", otherID, err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("open-one-to-one-chat").Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if chat := s.pairChatLocked(selfID, otherID); chat != nil {
		return copyMessages(chat.Messages)
	}
	return nil
}

// ResetGroupRouting forgets which group channels were routed into the store.
// Called after the relay's listeners have been cleared by a disconnect so a
// later OpenGroupChat subscribes afresh.
func (s *Store) ResetGroupRouting() {
	s.mu.Lock()
	s.groupSubs = make(map[string]bool)
	s.mu.Unlock()
}

// ensureGroupChat creates the conversation bound to groupID when absent.
func (s *Store) ensureGroupChat(ctx context.Context, groupID string) {
	s.mu.Lock()
	if s.groupChatLocked(groupID) != nil {
		s.mu.Unlock()
		return
	}
	s.chats = append(s.chats, model.Chat{
		ID:        GroupChatID(groupID),
		Type:      model.ChatGroup,
		GroupID:   groupID,
		Messages:  []model.Message{},
		UpdatedAt: time.Now(),
	})
	metrics.ActiveChats.Set(float64(len(s.chats)))
	s.mu.Unlock()

	s.persist(ctx)
}

// hasPairChat reports whether a two-party conversation between a and b is
// already held.
func (s *Store) hasPairChat(a, b string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairChatLocked(a, b) != nil
}

func (s *Store) chatLocked(id string) *model.Chat {
	for i := range s.chats {
		if s.chats[i].ID == id {
			return &s.chats[i]
		}
	}
	return nil
}

func (s *Store) pairChatLocked(a, b string) *model.Chat {
	for i := range s.chats {
		if s.chats[i].IsPair(a, b) {
			return &s.chats[i]
		}
	}
	return nil
}

func (s *Store) groupChatLocked(groupID string) *model.Chat {
	if groupID == "" {
		return nil
	}
	for i := range s.chats {
		if s.chats[i].Type == model.ChatGroup && s.chats[i].GroupID == groupID {
			return &s.chats[i]
		}
	}
	return nil
}

// appendLocked appends msg and keeps lastMessage/updatedAt in sync. The
// message sequence only grows; insertion order is chronological order.
func appendLocked(chat *model.Chat, msg model.Message) {
	chat.Messages = append(chat.Messages, msg)
	chat.LastMessage = &chat.Messages[len(chat.Messages)-1]
	chat.UpdatedAt = time.Now()
}

// persist snapshots the conversation directory. A failed write loses at most
// this one update; it is logged and never propagated.
func (s *Store) persist(ctx context.Context) {
	if err := s.kv.Save(ctx, storage.KeyChats, s.Chats()); err != nil {
		log.Printf("[chat] persist conversations: %v", err)
	}
}

func copyMessages(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// newMessageID generates a collision-resistant local message id.
func newMessageID() string {
	return fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
