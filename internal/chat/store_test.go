package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driftchat/client/internal/directory"
	"github.com/driftchat/client/internal/model"
	"github.com/driftchat/client/internal/protocol"
	"github.com/driftchat/client/internal/storage"
	"github.com/driftchat/client/internal/transport"
)

type fakeSender struct {
	mu        sync.Mutex
	sent      []transport.SendRequest
	groupSubs map[string]func(transport.MessageEvent)
}

func newFakeSender() *fakeSender {
	return &fakeSender{groupSubs: make(map[string]func(transport.MessageEvent))}
}

func (f *fakeSender) SendMessage(req transport.SendRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
}

func (f *fakeSender) SubscribeGroup(groupID string, fn func(transport.MessageEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupSubs[groupID] = fn
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeHistory fails every remote call unless primed, which exercises the
// local fallback paths.
type fakeHistory struct {
	page     []model.Message
	pageErr  error
	match    *directory.RandomMatch
	matchErr error
}

func (f *fakeHistory) OpenGroupChat(_ context.Context, _, _ string, _ int) ([]model.Message, error) {
	return f.page, f.pageErr
}

func (f *fakeHistory) OpenOneToOneChat(_ context.Context, _, _, _ string, _ int) ([]model.Message, error) {
	return f.page, f.pageErr
}

func (f *fakeHistory) OpenRandomChat(_ context.Context, _ string) (*directory.RandomMatch, error) {
	return f.match, f.matchErr
}

type fakePeers struct {
	mu    sync.Mutex
	users []model.User
	added []model.User
}

func (f *fakePeers) Users() []model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.User(nil), f.users...)
}

func (f *fakePeers) AddUser(_ context.Context, user model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, user)
	f.users = append(f.users, user)
}

func newTestStore(sender *fakeSender, history *fakeHistory, peers *fakePeers) *Store {
	if sender == nil {
		sender = newFakeSender()
	}
	if history == nil {
		history = &fakeHistory{pageErr: errors.New("directory down"), matchErr: errors.New("directory down")}
	}
	if peers == nil {
		peers = &fakePeers{}
	}
	return New(sender, history, peers, storage.NewMemoryStore())
}

func TestDirectChatID_OrderIndependent(t *testing.T) {
	if got := DirectChatID("u1", "u2"); got != "chat_u1_u2" {
		t.Errorf("expected chat_u1_u2, got %q", got)
	}
	if DirectChatID("u2", "u1") != DirectChatID("u1", "u2") {
		t.Error("expected both orders to derive the same id")
	}
}

func TestStartDirectChat_Idempotent(t *testing.T) {
	s := newTestStore(nil, nil, nil)
	ctx := context.Background()

	first := s.StartDirectChat(ctx, "u1", "u2")
	second := s.StartDirectChat(ctx, "u2", "u1")

	if first == "" || first != second {
		t.Fatalf("expected a single shared id, got %q and %q", first, second)
	}
	if n := len(s.Chats()); n != 1 {
		t.Errorf("expected 1 conversation, got %d", n)
	}
}

func TestStartDirectChat_NoIdentity(t *testing.T) {
	s := newTestStore(nil, nil, nil)
	if id := s.StartDirectChat(context.Background(), "", "u2"); id != "" {
		t.Errorf("expected empty id without an identity, got %q", id)
	}
	if n := len(s.Chats()); n != 0 {
		t.Errorf("expected no conversations, got %d", n)
	}
}

func TestSendMessage_OptimisticAppendAndDispatch(t *testing.T) {
	sender := newFakeSender()
	s := newTestStore(sender, nil, nil)
	ctx := context.Background()

	chatID := s.StartDirectChat(ctx, "u1", "u2")
	s.SendMessage(ctx, chatID, "hi", "u1")

	chat, ok := s.Chat(chatID)
	if !ok {
		t.Fatalf("conversation %q not found", chatID)
	}
	if len(chat.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(chat.Messages))
	}
	msg := chat.Messages[0]
	if msg.SenderID != "u1" || msg.Content != "hi" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("expected generated id and timestamp")
	}
	if chat.LastMessage == nil || chat.LastMessage.ID != msg.ID {
		t.Error("expected lastMessage to mirror the final message")
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 dispatched request, got %d", len(sender.sent))
	}
	req := sender.sent[0]
	if req.Kind != protocol.KindPrivate || req.ToUserID != "u2" || req.Message != "hi" {
		t.Errorf("unexpected dispatch: %+v", req)
	}
}

func TestSendMessage_NoOps(t *testing.T) {
	sender := newFakeSender()
	s := newTestStore(sender, nil, nil)
	ctx := context.Background()
	chatID := s.StartDirectChat(ctx, "u1", "u2")

	s.SendMessage(ctx, chatID, "", "u1")          // empty content
	s.SendMessage(ctx, chatID, "hi", "")          // no identity
	s.SendMessage(ctx, "chat_nope", "hi", "u1")   // unknown conversation

	chat, _ := s.Chat(chatID)
	if len(chat.Messages) != 0 {
		t.Errorf("expected no appends, got %d", len(chat.Messages))
	}
	if sender.sentCount() != 0 {
		t.Errorf("expected no dispatches, got %d", sender.sentCount())
	}
}

func TestApplyInbound_AppendsToExistingPair(t *testing.T) {
	s := newTestStore(nil, nil, nil)
	ctx := context.Background()

	chatID := s.StartDirectChat(ctx, "u1", "u2")
	s.SendMessage(ctx, chatID, "hi", "u1")

	s.ApplyInbound(ctx, transport.MessageEvent{
		ID:         "m2",
		FromUserID: "u2",
		ToUserID:   "u1",
		Body:       "hello",
		Kind:       protocol.KindPrivate,
		Timestamp:  time.Now(),
	})

	chat, _ := s.Chat(chatID)
	if len(chat.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(chat.Messages))
	}
	if chat.Messages[0].Content != "hi" || chat.Messages[1].Content != "hello" {
		t.Errorf("expected chronological order, got %q then %q",
			chat.Messages[0].Content, chat.Messages[1].Content)
	}
	if chat.Messages[1].SenderID != "u2" {
		t.Errorf("expected sender u2, got %q", chat.Messages[1].SenderID)
	}
	if chat.LastMessage == nil || chat.LastMessage.Content != "hello" {
		t.Error("expected lastMessage to track the inbound append")
	}
}

func TestApplyInbound_DropsWhenNoConversation(t *testing.T) {
	s := newTestStore(nil, nil, nil)
	ctx := context.Background()
	s.StartDirectChat(ctx, "u1", "u2")

	s.ApplyInbound(ctx, transport.MessageEvent{
		FromUserID: "u9",
		ToUserID:   "u1",
		Body:       "stray",
		Kind:       protocol.KindPrivate,
	})

	chats := s.Chats()
	if len(chats) != 1 {
		t.Fatalf("expected conversation set unchanged, got %d", len(chats))
	}
	if len(chats[0].Messages) != 0 {
		t.Errorf("expected no messages, got %d", len(chats[0].Messages))
	}
}

func TestApplyInbound_FillsMissingIDAndTimestamp(t *testing.T) {
	s := newTestStore(nil, nil, nil)
	ctx := context.Background()
	chatID := s.StartDirectChat(ctx, "u1", "u2")

	s.ApplyInbound(ctx, transport.MessageEvent{
		FromUserID: "u2",
		ToUserID:   "u1",
		Body:       "hello",
		Kind:       protocol.KindPrivate,
	})

	chat, _ := s.Chat(chatID)
	if len(chat.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(chat.Messages))
	}
	if chat.Messages[0].ID == "" || chat.Messages[0].Timestamp.IsZero() {
		t.Errorf("expected generated id and timestamp, got %+v", chat.Messages[0])
	}
}

func TestApplyInbound_RoutesGroupEvents(t *testing.T) {
	s := newTestStore(nil, nil, nil)
	ctx := context.Background()
	s.OpenGroupChat(ctx, "g1", "", 20)

	s.ApplyInbound(ctx, transport.MessageEvent{
		FromUserID: "u2",
		GroupID:    "g1",
		Body:       "hey room",
		Kind:       protocol.KindGroup,
	})

	chat, ok := s.Chat(GroupChatID("g1"))
	if !ok {
		t.Fatal("group conversation not found")
	}
	if len(chat.Messages) != 1 || chat.Messages[0].Content != "hey room" {
		t.Errorf("unexpected group messages: %+v", chat.Messages)
	}
}

func TestStartRandomChat_AdoptsRemoteMatch(t *testing.T) {
	history := &fakeHistory{
		match: &directory.RandomMatch{
			ConversationID: "conv_77",
			MatchedUser:    model.User{ID: "u7", IsAnonymous: true},
		},
	}
	peers := &fakePeers{}
	s := newTestStore(nil, history, peers)

	id, ok := s.StartRandomChat(context.Background(), "u1")
	if !ok {
		t.Fatal("expected a match")
	}
	if id != "conv_77" {
		t.Errorf("expected remote conversation id, got %q", id)
	}
	if len(peers.added) != 1 || peers.added[0].ID != "u7" {
		t.Errorf("expected matched user recorded, got %+v", peers.added)
	}
	chat, found := s.Chat("conv_77")
	if !found || chat.Type != model.ChatRandom {
		t.Errorf("expected a random conversation, got %+v", chat)
	}
}

func TestStartRandomChat_LocalFallbackNeverPicksSelf(t *testing.T) {
	peers := &fakePeers{users: []model.User{{ID: "u1"}, {ID: "u2"}}}
	s := newTestStore(nil, nil, peers)

	id, ok := s.StartRandomChat(context.Background(), "u1")
	if !ok {
		t.Fatal("expected a local match")
	}
	if id != DirectChatID("u1", "u2") {
		t.Errorf("expected pair with u2, got %q", id)
	}
}

func TestStartRandomChat_SkipsExistingPairs(t *testing.T) {
	peers := &fakePeers{users: []model.User{{ID: "u2"}, {ID: "u3"}}}
	s := newTestStore(nil, nil, peers)
	ctx := context.Background()

	s.StartDirectChat(ctx, "u1", "u2")

	id, ok := s.StartRandomChat(ctx, "u1")
	if !ok {
		t.Fatal("expected a match among remaining candidates")
	}
	if id != DirectChatID("u1", "u3") {
		t.Errorf("expected pair with u3, got %q", id)
	}
}

func TestStartRandomChat_NoCandidates(t *testing.T) {
	peers := &fakePeers{users: []model.User{{ID: "u1"}}}
	s := newTestStore(nil, nil, peers)

	if id, ok := s.StartRandomChat(context.Background(), "u1"); ok {
		t.Errorf("expected no match, got %q", id)
	}
}

func TestOpenGroupChat_SubscribesOnce(t *testing.T) {
	sender := newFakeSender()
	s := newTestStore(sender, nil, nil)
	ctx := context.Background()

	s.OpenGroupChat(ctx, "g1", "", 20)
	s.OpenGroupChat(ctx, "g1", "", 20)

	sender.mu.Lock()
	subs := len(sender.groupSubs)
	fn := sender.groupSubs["g1"]
	sender.mu.Unlock()
	if subs != 1 || fn == nil {
		t.Fatalf("expected exactly one subscription for g1, got %d", subs)
	}

	// The registered route feeds inbound group events into the store.
	fn(transport.MessageEvent{FromUserID: "u2", GroupID: "g1", Body: "hi", Kind: protocol.KindGroup})
	chat, _ := s.Chat(GroupChatID("g1"))
	if len(chat.Messages) != 1 {
		t.Errorf("expected routed message, got %d", len(chat.Messages))
	}
}

func TestOpenGroupChat_ResubscribesAfterReset(t *testing.T) {
	sender := newFakeSender()
	s := newTestStore(sender, nil, nil)
	ctx := context.Background()

	s.OpenGroupChat(ctx, "g1", "", 20)
	s.ResetGroupRouting()
	delete(sender.groupSubs, "g1")

	s.OpenGroupChat(ctx, "g1", "", 20)
	if sender.groupSubs["g1"] == nil {
		t.Error("expected a fresh subscription after routing reset")
	}
}

func TestOpenDirectChat_PrefersRemotePage(t *testing.T) {
	history := &fakeHistory{page: []model.Message{{ID: "m1", SenderID: "u2", Content: "old"}}}
	s := newTestStore(nil, history, nil)

	msgs := s.OpenDirectChat(context.Background(), "u1", "u2", "", 20)
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("expected the remote page, got %+v", msgs)
	}
}

func TestOpenDirectChat_LocalFallback(t *testing.T) {
	s := newTestStore(nil, nil, nil)
	ctx := context.Background()

	chatID := s.StartDirectChat(ctx, "u1", "u2")
	s.SendMessage(ctx, chatID, "hi", "u1")

	msgs := s.OpenDirectChat(ctx, "u1", "u2", "", 20)
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Errorf("expected local messages, got %+v", msgs)
	}
}

func TestLoad_RestoresPersistedChats(t *testing.T) {
	kv := storage.NewMemoryStore()
	sender := newFakeSender()
	history := &fakeHistory{pageErr: errors.New("down"), matchErr: errors.New("down")}
	ctx := context.Background()

	first := New(sender, history, &fakePeers{}, kv)
	chatID := first.StartDirectChat(ctx, "u1", "u2")
	first.SendMessage(ctx, chatID, "hi", "u1")

	second := New(sender, history, &fakePeers{}, kv)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	chat, ok := second.Chat(chatID)
	if !ok {
		t.Fatal("expected persisted conversation after reload")
	}
	if len(chat.Messages) != 1 || chat.Messages[0].Content != "hi" {
		t.Errorf("unexpected restored messages: %+v", chat.Messages)
	}
}

// Two peers exchanging greetings over one shared conversation.
func TestDirectConversationExchange(t *testing.T) {
	sender := newFakeSender()
	s := newTestStore(sender, nil, nil)
	ctx := context.Background()

	chatID := s.StartDirectChat(ctx, "u1", "u2")
	if chatID != "chat_u1_u2" {
		t.Fatalf("expected chat_u1_u2, got %q", chatID)
	}

	s.SendMessage(ctx, chatID, "hi", "u1")
	s.ApplyInbound(ctx, transport.MessageEvent{
		FromUserID: "u2",
		ToUserID:   "u1",
		Body:       "hello",
		Kind:       protocol.KindPrivate,
	})

	chat, _ := s.Chat(chatID)
	if len(chat.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(chat.Messages))
	}
	if chat.Messages[0].SenderID != "u1" || chat.Messages[1].SenderID != "u2" {
		t.Errorf("unexpected senders: %q then %q",
			chat.Messages[0].SenderID, chat.Messages[1].SenderID)
	}
}
