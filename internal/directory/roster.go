package directory

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftchat/client/internal/metrics"
	"github.com/driftchat/client/internal/model"
	"github.com/driftchat/client/internal/storage"
)

// UserParams are the fields a user may supply during setup or profile edit.
type UserParams struct {
	Name   string
	Phone  string
	Email  string
	Bio    string
	Avatar string
}

func (p UserParams) anonymous() bool {
	return p.Name == "" && p.Phone == "" && p.Email == ""
}

// Roster is the local user and group registry layered over the remote
// directory. Every remote call degrades to a best-effort local result; local
// records created while the service is unreachable carry a "local_" id
// prefix so a later remote record can supersede them.
type Roster struct {
	client *Client
	kv     storage.KV

	mu     sync.Mutex
	users  []model.User
	groups []model.Group
}

// NewRoster returns a roster backed by the given directory client and
// persistence adapter.
func NewRoster(client *Client, kv storage.KV) *Roster {
	return &Roster{client: client, kv: kv}
}

// Load restores the persisted user and group records.
func (r *Roster) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.kv.Load(ctx, storage.KeyUsers, &r.users); err != nil {
		return err
	}
	if _, err := r.kv.Load(ctx, storage.KeyGroups, &r.groups); err != nil {
		return err
	}
	return nil
}

// Users returns a snapshot of the known peers.
func (r *Roster) Users() []model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.User, len(r.users))
	copy(out, r.users)
	return out
}

// Groups returns a snapshot of the known groups.
func (r *Roster) Groups() []model.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Group, len(r.groups))
	copy(out, r.groups)
	return out
}

// CreateUser registers an identity. Named identities go through
// create-profile, blank ones through join-anonymous; when the directory is
// unreachable a local identity is produced with a "local_" id and
// IsAnonymous computed from the supplied fields. Never fails.
func (r *Roster) CreateUser(ctx context.Context, params UserParams) model.User {
	p := ProfileParams{Name: params.Name, Phone: params.Phone, Email: params.Email}

	var (
		remote *model.User
		err    error
	)
	if params.anonymous() {
		remote, err = r.client.JoinAnonymous(ctx, p)
	} else {
		remote, err = r.client.CreateProfile(ctx, p)
	}

	var user model.User
	if err != nil {
		log.Printf("[directory] create identity failed, using local record: %v", err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("create-profile").Inc()
		user = model.User{
			ID:          "local_" + uuid.NewString(),
			Name:        params.Name,
			Phone:       params.Phone,
			Email:       params.Email,
			IsAnonymous: params.anonymous(),
			LastSeen:    time.Now(),
		}
	} else {
		user = *remote
	}
	user.Bio = params.Bio
	user.Avatar = params.Avatar

	r.putUser(ctx, user)
	return user
}

// UpdateUser pushes changed fields to the directory and applies them locally
// regardless of the remote outcome (optimistic, local-first).
func (r *Roster) UpdateUser(ctx context.Context, current model.User, params UserParams) model.User {
	err := r.client.UpdateProfile(ctx, current.ID, ProfileParams{
		Name:  params.Name,
		Phone: params.Phone,
		Email: params.Email,
	})
	if err != nil {
		log.Printf("[directory] update profile failed, keeping local copy: %v", err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("update-profile").Inc()
	}

	if params.Name != "" {
		current.Name = params.Name
	}
	if params.Phone != "" {
		current.Phone = params.Phone
	}
	if params.Email != "" {
		current.Email = params.Email
	}
	if params.Bio != "" {
		current.Bio = params.Bio
	}
	if params.Avatar != "" {
		current.Avatar = params.Avatar
	}

	r.putUser(ctx, current)
	return current
}

// GetProfile fetches an identity record, falling back to the local registry.
// Returns nil when the user is unknown both remotely and locally.
func (r *Roster) GetProfile(ctx context.Context, userID string) *model.User {
	if user, err := r.client.GetProfile(ctx, userID); err == nil {
		r.putUser(ctx, *user)
		return user
	} else {
		log.Printf("[directory] get profile %s failed: %v", userID, err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("get-profile").Inc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == userID {
			u := r.users[i]
			return &u
		}
	}
	return nil
}

// AddUser records a peer discovered through matching or search. Existing
// records are replaced, never duplicated.
func (r *Roster) AddUser(ctx context.Context, user model.User) {
	r.putUser(ctx, user)
}

// CreateGroup registers a group, adopting the remote id when available and a
// "local_group_" id otherwise. The creator is always the first member.
func (r *Roster) CreateGroup(ctx context.Context, name, description, createdBy string) model.Group {
	id, err := r.client.CreateGroup(ctx, name, description, createdBy)
	if err != nil || id == "" {
		log.Printf("[directory] create group failed, using local record: %v", err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("create-group").Inc()
		id = "local_group_" + uuid.NewString()
	}

	now := time.Now()
	group := model.Group{
		ID:          id,
		Name:        name,
		Description: description,
		Members:     []string{createdBy},
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.groups = append(r.groups, group)
	r.mu.Unlock()
	r.persistGroups(ctx)
	return group
}

// JoinGroup adds the user to the group's member set. The join is idempotent:
// joining twice has no additional effect. The local membership is applied
// whether or not the remote call succeeds.
func (r *Roster) JoinGroup(ctx context.Context, groupID, userID string) {
	if err := r.client.JoinGroup(ctx, groupID, userID); err != nil {
		log.Printf("[directory] join group %s failed, applying locally: %v", groupID, err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("join-group").Inc()
	}

	r.mu.Lock()
	for i := range r.groups {
		g := &r.groups[i]
		if g.ID == groupID && !g.HasMember(userID) {
			g.Members = append(g.Members, userID)
			g.UpdatedAt = time.Now()
		}
	}
	r.mu.Unlock()
	r.persistGroups(ctx)
}

// Group returns the locally known group record, or nil.
func (r *Roster) Group(groupID string) *model.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.groups {
		if r.groups[i].ID == groupID {
			g := r.groups[i]
			return &g
		}
	}
	return nil
}

// SearchUsers runs the remote search filtered to users, falling back to a
// case-insensitive substring match over the local registry.
func (r *Roster) SearchUsers(ctx context.Context, query string) []model.User {
	if results, err := r.client.Search(ctx, query); err == nil {
		users := make([]model.User, 0, len(results))
		for _, res := range results {
			if res.Type == "user" && res.User != nil {
				users = append(users, *res.User)
			}
		}
		return users
	} else {
		log.Printf("[directory] search failed, using local registry: %v", err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("search").Inc()
	}

	q := strings.ToLower(query)
	var users []model.User
	for _, u := range r.Users() {
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Username), q) {
			users = append(users, u)
		}
	}
	return users
}

// SearchGroups runs the remote search filtered to groups, falling back to a
// case-insensitive substring match over the local registry.
func (r *Roster) SearchGroups(ctx context.Context, query string) []model.Group {
	if results, err := r.client.Search(ctx, query); err == nil {
		groups := make([]model.Group, 0, len(results))
		for _, res := range results {
			if res.Type == "group" && res.Group != nil {
				groups = append(groups, *res.Group)
			}
		}
		return groups
	} else {
		log.Printf("[directory] search failed, using local registry: %v", err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("search").Inc()
	}

	q := strings.ToLower(query)
	var groups []model.Group
	for _, g := range r.Groups() {
		if strings.Contains(strings.ToLower(g.Name), q) {
			groups = append(groups, g)
		}
	}
	return groups
}

// GroupsOverview fetches the curated trending/new/popular lists, falling
// back to slices of the local registry: first five, last five newest-first,
// and top five by member count.
func (r *Roster) GroupsOverview(ctx context.Context) Overview {
	if overview, err := r.client.GroupsOverview(ctx); err == nil {
		return *overview
	} else {
		log.Printf("[directory] groups overview failed, using local lists: %v", err)
		metrics.DirectoryFallbacksTotal.WithLabelValues("groups-overview").Inc()
	}

	groups := r.Groups()

	trending := firstN(groups, 5)

	newest := make([]model.Group, 0, 5)
	for i := len(groups) - 1; i >= 0 && len(newest) < 5; i-- {
		newest = append(newest, groups[i])
	}

	popular := make([]model.Group, len(groups))
	copy(popular, groups)
	sort.SliceStable(popular, func(i, j int) bool {
		return len(popular[i].Members) > len(popular[j].Members)
	})
	popular = firstN(popular, 5)

	return Overview{Trending: trending, New: newest, Popular: popular}
}

func firstN(groups []model.Group, n int) []model.Group {
	if len(groups) > n {
		groups = groups[:n]
	}
	out := make([]model.Group, len(groups))
	copy(out, groups)
	return out
}

// putUser inserts or replaces a user record and persists the registry.
func (r *Roster) putUser(ctx context.Context, user model.User) {
	r.mu.Lock()
	replaced := false
	for i := range r.users {
		if r.users[i].ID == user.ID {
			r.users[i] = user
			replaced = true
			break
		}
	}
	if !replaced {
		r.users = append(r.users, user)
	}
	r.mu.Unlock()

	if err := r.kv.Save(ctx, storage.KeyUsers, r.Users()); err != nil {
		log.Printf("[directory] persist users: %v", err)
	}
}

func (r *Roster) persistGroups(ctx context.Context) {
	if err := r.kv.Save(ctx, storage.KeyGroups, r.Groups()); err != nil {
		log.Printf("[directory] persist groups: %v", err)
	}
}
