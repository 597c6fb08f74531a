// Package directory talks to the remote identity/group/search service and
// keeps the local peer and group registry. Every remote call has a local
// fallback so the client core stays usable while the service is unreachable;
// failures degrade to best-effort local data, never to the caller.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/driftchat/client/internal/model"
)

// DefaultLimit is the history page size used when the caller passes none.
const DefaultLimit = 20

// Client performs the stateless request/response calls against the remote
// directory. All endpoints are POST with a form-encoded body.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a directory client rooted at baseURL
// (e.g. "https://directory.example.com/apis/v1").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ProfileParams are the identity fields accepted by the profile endpoints.
type ProfileParams struct {
	Name  string
	Phone string
	Email string
}

// RandomMatch is the result of a successful open-random-chat call.
type RandomMatch struct {
	ConversationID string
	MatchedUser    model.User
}

// SearchResult is one entry of the heterogeneous search response.
type SearchResult struct {
	Type  string // "user" or "group"
	User  *model.User
	Group *model.Group
}

// Overview holds the three curated group lists from groups-overview.
type Overview struct {
	Trending []model.Group
	New      []model.Group
	Popular  []model.Group
}

// ---------------------------------------------------------------------------
// Wire payloads. The service uses Mongo-style "_id" keys and a {status,data}
// envelope; message records appear under several historical field names, so
// the payload carries both and coalesces.
// ---------------------------------------------------------------------------

type statusEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type profilePayload struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	Bio         string `json:"bio"`
	IsAnonymous bool   `json:"isAnonymous"`
	CreatedAt   string `json:"createdAt"`
}

func (p profilePayload) toModel() model.User {
	lastSeen := time.Now()
	if t, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
		lastSeen = t
	}
	return model.User{
		ID:          p.ID,
		Name:        p.Name,
		Phone:       p.Phone,
		Email:       p.Email,
		Username:    p.Username,
		Bio:         p.Bio,
		IsAnonymous: p.IsAnonymous,
		LastSeen:    lastSeen,
	}
}

type groupPayload struct {
	ID          string `json:"_id"`
	GroupName   string `json:"group_name"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
	CreatedAt   string `json:"createdAt"`
}

func (p groupPayload) toModel() model.Group {
	createdAt := time.Now()
	if t, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
		createdAt = t
	}
	return model.Group{
		ID:          p.ID,
		Name:        p.GroupName,
		Description: p.Description,
		Members:     []string{},
		CreatedBy:   p.CreatedBy,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

type messagePayload struct {
	ID        string `json:"_id"`
	AltID     string `json:"id"`
	From      string `json:"from"`
	SenderID  string `json:"senderId"`
	Message   string `json:"message"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
}

func (p messagePayload) toModel() model.Message {
	id := p.ID
	if id == "" {
		id = p.AltID
	}
	sender := p.From
	if sender == "" {
		sender = p.SenderID
	}
	content := p.Message
	if content == "" {
		content = p.Content
	}
	raw := p.CreatedAt
	if raw == "" {
		raw = p.Timestamp
	}
	ts := time.Now()
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		ts = t
	}
	typ := p.Type
	if typ == "" {
		typ = model.MessageText
	}
	return model.Message{ID: id, SenderID: sender, Content: content, Timestamp: ts, Type: typ}
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// CreateProfile registers a named identity and returns the assigned record.
func (c *Client) CreateProfile(ctx context.Context, p ProfileParams) (*model.User, error) {
	return c.profileCall(ctx, "/create-profile", p)
}

// JoinAnonymous registers an anonymous identity.
func (c *Client) JoinAnonymous(ctx context.Context, p ProfileParams) (*model.User, error) {
	return c.profileCall(ctx, "/join-anonymous", p)
}

func (c *Client) profileCall(ctx context.Context, endpoint string, p ProfileParams) (*model.User, error) {
	data, err := c.post(ctx, endpoint, url.Values{
		"name":  {p.Name},
		"phone": {p.Phone},
		"email": {p.Email},
	})
	if err != nil {
		return nil, err
	}
	var payload profilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("directory: decode %s: %w", endpoint, err)
	}
	user := payload.toModel()
	return &user, nil
}

// GetProfile fetches an identity record by id.
func (c *Client) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	data, err := c.post(ctx, "/get-profile", url.Values{"userId": {userID}})
	if err != nil {
		return nil, err
	}
	var payload profilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("directory: decode get-profile: %w", err)
	}
	user := payload.toModel()
	return &user, nil
}

// UpdateProfile pushes changed identity fields.
func (c *Client) UpdateProfile(ctx context.Context, userID string, p ProfileParams) error {
	_, err := c.post(ctx, "/update-profile", url.Values{
		"userId": {userID},
		"name":   {p.Name},
		"phone":  {p.Phone},
		"email":  {p.Email},
	})
	return err
}

// CreateGroup registers a group and returns its assigned id.
func (c *Client) CreateGroup(ctx context.Context, name, description, createdBy string) (string, error) {
	data, err := c.post(ctx, "/create-group", url.Values{
		"group_name":  {name},
		"description": {description},
		"createdBy":   {createdBy},
	})
	if err != nil {
		return "", err
	}
	var payload groupPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("directory: decode create-group: %w", err)
	}
	return payload.ID, nil
}

// JoinGroup adds the user to the group's member set.
func (c *Client) JoinGroup(ctx context.Context, groupID, userID string) error {
	_, err := c.post(ctx, "/join-group", url.Values{
		"groupId": {groupID},
		"userId":  {userID},
	})
	return err
}

// OpenGroupChat fetches one page of group history. cursor is the last-seen
// message id; limit <= 0 uses DefaultLimit.
func (c *Client) OpenGroupChat(ctx context.Context, groupID, cursor string, limit int) ([]model.Message, error) {
	return c.historyCall(ctx, "/open-group-chat", url.Values{"groupId": {groupID}}, cursor, limit)
}

// OpenOneToOneChat fetches one page of direct-chat history between two users.
func (c *Client) OpenOneToOneChat(ctx context.Context, userID, otherUserID, cursor string, limit int) ([]model.Message, error) {
	return c.historyCall(ctx, "/open-one-to-one-chat", url.Values{
		"userId":      {userID},
		"otherUserId": {otherUserID},
	}, cursor, limit)
}

func (c *Client) historyCall(ctx context.Context, endpoint string, form url.Values, cursor string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if cursor != "" {
		form.Set("lastMessageId", cursor)
	}
	form.Set("limit", strconv.Itoa(limit))

	data, err := c.post(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Messages []messagePayload `json:"messages"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("directory: decode %s: %w", endpoint, err)
	}
	msgs := make([]model.Message, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		msgs = append(msgs, m.toModel())
	}
	return msgs, nil
}

// OpenRandomChat asks the service to match the user with a random peer.
func (c *Client) OpenRandomChat(ctx context.Context, userID string) (*RandomMatch, error) {
	data, err := c.post(ctx, "/open-random-chat", url.Values{"userId": {userID}})
	if err != nil {
		return nil, err
	}
	var payload struct {
		ConversationID string         `json:"conversationId"`
		MatchedUser    profilePayload `json:"matchedUser"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("directory: decode open-random-chat: %w", err)
	}
	if payload.MatchedUser.ID == "" {
		return nil, fmt.Errorf("directory: open-random-chat returned no match")
	}
	return &RandomMatch{
		ConversationID: payload.ConversationID,
		MatchedUser:    payload.MatchedUser.toModel(),
	}, nil
}

// Search runs the global search and returns the heterogeneous result list.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	data, err := c.post(ctx, "/search", url.Values{"query": {query}})
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("directory: decode search: %w", err)
	}

	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			continue
		}
		switch head.Type {
		case "user":
			var p profilePayload
			if json.Unmarshal(item, &p) == nil {
				u := p.toModel()
				results = append(results, SearchResult{Type: "user", User: &u})
			}
		case "group":
			var p groupPayload
			if json.Unmarshal(item, &p) == nil {
				g := p.toModel()
				results = append(results, SearchResult{Type: "group", Group: &g})
			}
		}
	}
	return results, nil
}

// GroupsOverview fetches the trending/new/popular group lists.
func (c *Client) GroupsOverview(ctx context.Context) (*Overview, error) {
	data, err := c.post(ctx, "/groups-overview", url.Values{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Trending []groupPayload `json:"trending"`
		New      []groupPayload `json:"new"`
		Popular  []groupPayload `json:"popular"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("directory: decode groups-overview: %w", err)
	}

	convert := func(ps []groupPayload) []model.Group {
		gs := make([]model.Group, 0, len(ps))
		for _, p := range ps {
			gs = append(gs, p.toModel())
		}
		return gs
	}
	return &Overview{
		Trending: convert(payload.Trending),
		New:      convert(payload.New),
		Popular:  convert(payload.Popular),
	}, nil
}

// post sends a form-encoded POST and returns the envelope's data payload.
// Network failures, non-2xx responses and status=false envelopes are all
// errors; callers recover via their local fallback.
func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("directory: build request %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("directory: %s: HTTP %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("directory: read %s response: %w", endpoint, err)
	}

	var env statusEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("directory: decode %s envelope: %w", endpoint, err)
	}
	if !env.Status {
		return nil, fmt.Errorf("directory: %s rejected: %s", endpoint, env.Message)
	}
	return env.Data, nil
}
