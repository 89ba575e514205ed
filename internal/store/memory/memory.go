// Package memory provides in-process implementations of the auth and audit
// stores. It backs tests and the API when no database is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"campuslink.app/internal/audit"
	"campuslink.app/internal/auth"
	"campuslink.app/internal/ids"
)

var (
	_ auth.Store  = (*Store)(nil)
	_ audit.Store = (*Store)(nil)
)

// Store implements auth.Store and audit.Store with in-process concurrency safety.
type Store struct {
	mu sync.RWMutex

	users      map[string]*auth.User
	byEmail    map[string]string
	groups     map[string][]string
	membership map[string]map[string]struct{}
	blacklist  map[string]auth.BlacklistEntry
	entries    []audit.Entry
	events     []audit.SecurityEvent

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]*auth.User),
		byEmail:    make(map[string]string),
		groups:     make(map[string][]string),
		membership: make(map[string]map[string]struct{}),
		blacklist:  make(map[string]auth.BlacklistEntry),
		now:        time.Now,
	}
}

// SetClock overrides the time source used for timestamps.
func (s *Store) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.now = fn
	}
}

func (s *Store) Users(context.Context) auth.UserStore { return (*users)(s) }
func (s *Store) Groups(context.Context) auth.GroupStore { return (*groups)(s) }
func (s *Store) Blacklist(context.Context) auth.Blacklist { return (*blacklist)(s) }

// AddToGroup grants userID the permissions of an existing group.
func (s *Store) AddToGroup(userID, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	s.join(userID, group)
	return nil
}

// GroupsOf lists the groups userID belongs to, sorted by name.
func (s *Store) GroupsOf(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.membership[userID]))
	for g := range s.membership[userID] {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Entries returns a copy of the audit log.
func (s *Store) Entries() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Events returns a copy of the stored security events in insertion order.
func (s *Store) Events() []audit.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.SecurityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) join(userID, group string) {
	set, ok := s.membership[userID]
	if !ok {
		set = make(map[string]struct{})
		s.membership[userID] = set
	}
	set[group] = struct{}{}
}

func clone(u *auth.User) *auth.User {
	cp := *u
	return &cp
}

type users Store

func (u *users) Create(_ context.Context, user *auth.User) error {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()

	email := auth.NormalizeEmail(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return auth.ErrConflict
	}
	if user.ID == "" {
		user.ID = ids.New()
	}
	now := s.now().UTC()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now

	s.users[user.ID] = clone(user)
	s.byEmail[email] = user.ID
	if _, ok := s.groups[user.Role.Group()]; ok {
		s.join(user.ID, user.Role.Group())
	}
	return nil
}

func (u *users) Find(_ context.Context, id string) (*auth.User, error) {
	s := (*Store)(u)
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clone(user), nil
}

func (u *users) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s := (*Store)(u)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clone(s.users[id]), nil
}

func (u *users) List(_ context.Context, filter auth.UserFilter) ([]*auth.User, error) {
	s := (*Store)(u)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*auth.User, 0, len(s.users))
	for _, user := range s.users {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		if filter.Active != nil && user.IsActive != *filter.Active {
			continue
		}
		out = append(out, clone(user))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (u *users) UpdateProfile(_ context.Context, id string, upd auth.ProfileUpdate) (*auth.User, error) {
	return (*Store)(u).mutate(id, func(user *auth.User) {
		if upd.Name != nil {
			user.Name = *upd.Name
		}
		if upd.Phone != nil {
			user.Phone = *upd.Phone
		}
		if upd.ImageURL != nil {
			user.ImageURL = *upd.ImageURL
		}
	})
}

func (u *users) SetActive(_ context.Context, id string, active bool) (*auth.User, error) {
	return (*Store)(u).mutate(id, func(user *auth.User) {
		user.IsActive = active
	})
}

func (u *users) ChangeRole(_ context.Context, id string, role auth.Role) (*auth.User, error) {
	s := (*Store)(u)
	return s.mutate(id, func(user *auth.User) {
		user.Role = role
		delete(s.membership, id)
		if _, ok := s.groups[role.Group()]; ok {
			s.join(id, role.Group())
		}
	})
}

// mutate applies fn under the write lock, so role and membership change together.
func (s *Store) mutate(id string, fn func(*auth.User)) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	fn(user)
	user.UpdatedAt = s.now().UTC()
	return clone(user), nil
}

type groups Store

func (g *groups) Sync(_ context.Context, list []auth.Group) error {
	s := (*Store)(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, grp := range list {
		perms := make([]string, len(grp.Permissions))
		copy(perms, grp.Permissions)
		s.groups[grp.Name] = perms
	}
	for id, user := range s.users {
		if len(s.membership[id]) == 0 {
			if _, ok := s.groups[user.Role.Group()]; ok {
				s.join(id, user.Role.Group())
			}
		}
	}
	return nil
}

func (g *groups) PermissionsForUser(_ context.Context, userID string) ([]string, error) {
	s := (*Store)(g)
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for name := range s.membership[userID] {
		for _, p := range s.groups[name] {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CreateGroup adds a named group carrying extra grants.
func (s *Store) CreateGroup(name string, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[strings.TrimSpace(name)] = append([]string(nil), perms...)
}

type blacklist Store

func (b *blacklist) Add(_ context.Context, jti, userID string, expiresAt time.Time) (bool, error) {
	s := (*Store)(b)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blacklist[jti]; exists {
		return false, nil
	}
	s.blacklist[jti] = auth.BlacklistEntry{
		JTI:           jti,
		UserID:        userID,
		ExpiresAt:     expiresAt,
		BlacklistedAt: s.now().UTC(),
	}
	return true, nil
}

func (b *blacklist) Contains(_ context.Context, jti string) (bool, error) {
	s := (*Store)(b)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[jti]
	return ok, nil
}

// PurgeExpiredBlacklist drops entries whose token expired at or before now.
func (s *Store) PurgeExpiredBlacklist(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for jti, e := range s.blacklist {
		if !e.ExpiresAt.After(now) {
			delete(s.blacklist, jti)
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendEntry(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *Store) AppendSecurityEvent(_ context.Context, ev *audit.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *Store) ListSecurityEvents(_ context.Context, filter audit.EventFilter) ([]audit.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.SecurityEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if filter.UnresolvedOnly && ev.Resolved {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ResolveSecurityEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].Resolved = true
			return nil
		}
	}
	return audit.ErrNotFound
}
