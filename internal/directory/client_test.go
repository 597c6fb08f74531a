package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// directoryStub serves canned envelopes per endpoint and records the last
// form it received.
type directoryStub struct {
	t         *testing.T
	responses map[string]string
	status    int
	lastPath  string
	lastForm  url.Values
}

func (s *directoryStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			s.t.Errorf("unexpected content type %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			s.t.Errorf("parse form: %v", err)
		}
		s.lastPath = r.URL.Path
		s.lastForm = r.PostForm

		if s.status != 0 {
			w.WriteHeader(s.status)
		}
		body, ok := s.responses[r.URL.Path]
		if !ok {
			body = `{"status":true,"data":{}}`
		}
		w.Write([]byte(body))
	})
}

func newStubClient(t *testing.T, stub *directoryStub) (*Client, func()) {
	stub.t = t
	srv := httptest.NewServer(stub.handler())
	return NewClient(srv.URL), srv.Close
}

func TestCreateProfile(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/create-profile": `{"status":true,"data":{"_id":"u42","name":"Mya","email":"mya@example.com","isAnonymous":false,"createdAt":"2024-05-01T10:00:00Z"}}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	user, err := client.CreateProfile(context.Background(), ProfileParams{Name: "Mya", Email: "mya@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u42" || user.Name != "Mya" || user.IsAnonymous {
		t.Errorf("unexpected user: %+v", user)
	}
	if stub.lastForm.Get("name") != "Mya" || stub.lastForm.Get("email") != "mya@example.com" {
		t.Errorf("unexpected form: %v", stub.lastForm)
	}
}

func TestJoinAnonymous(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/join-anonymous": `{"status":true,"data":{"_id":"u7","isAnonymous":true}}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	user, err := client.JoinAnonymous(context.Background(), ProfileParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u7" || !user.IsAnonymous {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestPost_RejectedEnvelope(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/get-profile": `{"status":false,"message":"no such user"}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	if _, err := client.GetProfile(context.Background(), "nope"); err == nil {
		t.Fatal("expected an error for status=false")
	}
}

func TestPost_HTTPError(t *testing.T) {
	stub := &directoryStub{status: http.StatusBadGateway}
	client, done := newStubClient(t, stub)
	defer done()

	if _, err := client.GetProfile(context.Background(), "u1"); err == nil {
		t.Fatal("expected an error for HTTP 502")
	}
}

func TestOpenOneToOneChat_CursorAndCoalescing(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/open-one-to-one-chat": `{"status":true,"data":{"messages":[
			{"_id":"m1","from":"u2","message":"hi","createdAt":"2024-05-01T10:00:00Z"},
			{"id":"m2","senderId":"u1","content":"hello","timestamp":"2024-05-01T10:01:00Z"}
		]}}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	msgs, err := client.OpenOneToOneChat(context.Background(), "u1", "u2", "m0", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.lastForm.Get("lastMessageId") != "m0" || stub.lastForm.Get("limit") != "10" {
		t.Errorf("unexpected paging form: %v", stub.lastForm)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].SenderID != "u2" || msgs[0].Content != "hi" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].ID != "m2" || msgs[1].SenderID != "u1" || msgs[1].Content != "hello" {
		t.Errorf("expected alternate field names coalesced, got %+v", msgs[1])
	}
}

func TestOpenGroupChat_DefaultLimit(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/open-group-chat": `{"status":true,"data":{"messages":[]}}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	if _, err := client.OpenGroupChat(context.Background(), "g1", "", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.lastForm.Get("limit") != "20" {
		t.Errorf("expected default limit 20, got %q", stub.lastForm.Get("limit"))
	}
	if stub.lastForm.Has("lastMessageId") {
		t.Error("expected no cursor on the first page")
	}
}

func TestOpenRandomChat(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/open-random-chat": `{"status":true,"data":{"conversationId":"conv_9","matchedUser":{"_id":"u9","isAnonymous":true}}}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	match, err := client.OpenRandomChat(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.ConversationID != "conv_9" || match.MatchedUser.ID != "u9" {
		t.Errorf("unexpected match: %+v", match)
	}
}

func TestOpenRandomChat_NoMatch(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/open-random-chat": `{"status":true,"data":{}}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	if _, err := client.OpenRandomChat(context.Background(), "u1"); err == nil {
		t.Fatal("expected an error when no user was matched")
	}
}

func TestSearch_Heterogeneous(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/search": `{"status":true,"data":[
			{"type":"user","_id":"u1","name":"Mya"},
			{"type":"group","_id":"g1","group_name":"gophers"},
			{"type":"unknown","_id":"x1"}
		]}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	results, err := client.Search(context.Background(), "my")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected unknown types skipped, got %d results", len(results))
	}
	if results[0].Type != "user" || results[0].User == nil || results[0].User.ID != "u1" {
		t.Errorf("unexpected user result: %+v", results[0])
	}
	if results[1].Type != "group" || results[1].Group == nil || results[1].Group.Name != "gophers" {
		t.Errorf("unexpected group result: %+v", results[1])
	}
}

func TestGroupsOverview(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/groups-overview": `{"status":true,"data":{
			"trending":[{"_id":"g1","group_name":"alpha"}],
			"new":[{"_id":"g2","group_name":"beta"}],
			"popular":[]
		}}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	overview, err := client.GroupsOverview(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overview.Trending) != 1 || overview.Trending[0].Name != "alpha" {
		t.Errorf("unexpected trending: %+v", overview.Trending)
	}
	if len(overview.New) != 1 || overview.New[0].ID != "g2" {
		t.Errorf("unexpected new: %+v", overview.New)
	}
	if len(overview.Popular) != 0 {
		t.Errorf("expected empty popular, got %+v", overview.Popular)
	}
}

func TestCreateGroup(t *testing.T) {
	stub := &directoryStub{responses: map[string]string{
		"/create-group": `{"status":true,"data":{"_id":"g77","group_name":"night owls"}}`,
	}}
	client, done := newStubClient(t, stub)
	defer done()

	id, err := client.CreateGroup(context.Background(), "night owls", "late chat", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "g77" {
		t.Errorf("expected g77, got %q", id)
	}
	if stub.lastForm.Get("group_name") != "night owls" || stub.lastForm.Get("createdBy") != "u1" {
		t.Errorf("unexpected form: %v", stub.lastForm)
	}
}
