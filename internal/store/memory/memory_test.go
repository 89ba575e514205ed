package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuslink.app/internal/audit"
	"campuslink.app/internal/auth"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.Groups(context.Background()).Sync(context.Background(), auth.BuiltinGroups()))
	return s
}

func TestCreateNormalizesEmailAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	users := s.Users(ctx)

	u := &auth.User{Email: "  Alice@Campus.EDU ", Name: "Alice", Role: auth.RoleStudent, IsActive: true}
	require.NoError(t, users.Create(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@campus.edu", u.Email)
	assert.Equal(t, []string{"Students"}, s.GroupsOf(u.ID))

	dup := &auth.User{Email: "alice@campus.edu", Name: "Other", Role: auth.RoleStudent}
	assert.ErrorIs(t, users.Create(ctx, dup), auth.ErrConflict)

	found, err := users.FindByEmail(ctx, "ALICE@campus.edu")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = users.Find(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestChangeRoleReplacesMembership(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	s.CreateGroup("Beta Testers", auth.PermViewAnalytics)

	u := &auth.User{Email: "bob@campus.edu", Name: "Bob", Role: auth.RoleStudent, IsActive: true}
	require.NoError(t, s.Users(ctx).Create(ctx, u))
	require.NoError(t, s.AddToGroup(u.ID, "Beta Testers"))

	perms, err := s.Groups(ctx).PermissionsForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Contains(t, perms, auth.PermViewAnalytics)

	updated, err := s.Users(ctx).ChangeRole(ctx, u.ID, auth.RoleCDSOwner)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleCDSOwner, updated.Role)
	assert.Equal(t, []string{"CDS Owners"}, s.GroupsOf(u.ID))

	perms, err = s.Groups(ctx).PermissionsForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, auth.PermissionsFor(auth.RoleCDSOwner), perms)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := base
	s.SetClock(func() time.Time { tick = tick.Add(time.Second); return tick })

	for _, tc := range []struct {
		email  string
		role   auth.Role
		active bool
	}{
		{"a@campus.edu", auth.RoleStudent, true},
		{"b@campus.edu", auth.RoleLaundryStaff, true},
		{"c@campus.edu", auth.RoleStudent, false},
	} {
		require.NoError(t, s.Users(ctx).Create(ctx, &auth.User{Email: tc.email, Name: "X Y", Role: tc.role, IsActive: tc.active}))
	}

	all, err := s.Users(ctx).List(ctx, auth.UserFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c@campus.edu", all[0].Email)

	active := true
	students, err := s.Users(ctx).List(ctx, auth.UserFilter{Role: auth.RoleStudent, Active: &active})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "a@campus.edu", students[0].Email)
}

func TestBlacklistAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	bl := New().Blacklist(ctx)
	exp := time.Now().Add(time.Hour)

	added, err := bl.Add(ctx, "jti-1", "u1", exp)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = bl.Add(ctx, "jti-1", "u1", exp)
	require.NoError(t, err)
	assert.False(t, added)

	ok, err := bl.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bl.Contains(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecurityEventsNewestFirstAndResolve(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.AppendSecurityEvent(ctx, &audit.SecurityEvent{ID: id, EventType: audit.EventFailedLogin}))
	}
	require.NoError(t, s.ResolveSecurityEvent(ctx, "e2"))
	assert.ErrorIs(t, s.ResolveSecurityEvent(ctx, "nope"), audit.ErrNotFound)

	open, err := s.ListSecurityEvents(ctx, audit.EventFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "e3", open[0].ID)
	assert.Equal(t, "e1", open[1].ID)

	limited, err := s.ListSecurityEvents(ctx, audit.EventFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "e3", limited[0].ID)
}

func TestPurgeExpiredBlacklist(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	bl := s.Blacklist(ctx)
	_, err := bl.Add(ctx, "old", "u1", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = bl.Add(ctx, "edge", "u1", now)
	require.NoError(t, err)
	_, err = bl.Add(ctx, "live", "u1", now.Add(time.Hour))
	require.NoError(t, err)

	n, err := s.PurgeExpiredBlacklist(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, _ := bl.Contains(ctx, "live")
	assert.True(t, ok)
	ok, _ = bl.Contains(ctx, "edge")
	assert.False(t, ok)
}
