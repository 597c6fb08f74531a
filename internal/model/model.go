// Package model defines the entities shared across the Drift client core:
// users, groups, conversations and messages. All types are plain JSON-
// serializable records; time fields marshal as RFC 3339 instants so the
// persisted snapshots stay portable.
package model

import "time"

// Chat kinds.
const (
	ChatDirect = "direct"
	ChatGroup  = "group"
	ChatRandom = "random"
)

// Message types. Only text is fully supported; image is recognized on the
// wire but has no send path.
const (
	MessageText  = "text"
	MessageImage = "image"
)

// User is an identity record, either assigned by the remote directory or
// generated locally with a "local_" id prefix when the directory is
// unreachable. IsAnonymous is true iff none of name/phone/email were supplied.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Username    string    `json:"username,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	IsAnonymous bool      `json:"isAnonymous"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Group is a named member set. The creator is tracked separately in CreatedBy;
// Members is unique and unordered for membership tests.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Members     []string  `json:"members"`
	CreatedBy   string    `json:"createdBy"`
	Avatar      string    `json:"avatar,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasMember reports whether userID is already in the member set.
func (g *Group) HasMember(userID string) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is an immutable entry in a conversation's sequence.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// Chat is a direct, random or group conversation. Messages is append-only;
// LastMessage mirrors the final element of Messages (nil when empty).
type Chat struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Participants []string  `json:"participants"`
	GroupID      string    `json:"groupId,omitempty"`
	Messages     []Message `json:"messages"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	UnreadCount  int       `json:"unreadCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasParticipant reports whether userID is one of the chat's participants.
func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not selfID, or "" for
// group chats and unknown ids.
func (c *Chat) OtherParticipant(selfID string) string {
	for _, id := range c.Participants {
		if id != selfID {
			return id
		}
	}
	return ""
}

// IsPair reports whether the chat is a two-party conversation between
// exactly a and b.
func (c *Chat) IsPair(a, b string) bool {
	if c.Type == ChatGroup {
		return false
	}
	return c.HasParticipant(a) && c.HasParticipant(b)
}
