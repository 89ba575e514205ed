package auth_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"campuslink.app/internal/audit"
	"campuslink.app/internal/auth"
	"campuslink.app/internal/store/memory"
)

const goodPassword = "Str0ng!Pass"

type serviceFixture struct {
	store *memory.Store
	svc   *auth.Service
	clock *clock
}

func newServiceFixture(t *testing.T, rotate bool) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	clk := newClock()
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret, Rotate: rotate},
		store.Users(ctx), store.Blacklist(ctx), auth.WithTokenClock(clk.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	svc, err := auth.NewService(store, tokens,
		auth.WithHasher(auth.BcryptHasher{Cost: 4}),
		auth.WithAuditor(audit.NewLogger(store)),
		auth.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.SyncGroups(ctx); err != nil {
		t.Fatalf("SyncGroups: %v", err)
	}
	return &serviceFixture{store: store, svc: svc, clock: clk}
}

func (f *serviceFixture) register(t *testing.T, email, name string) (*auth.User, auth.TokenPair) {
	t.Helper()
	u, pair, err := f.svc.Register(context.Background(), auth.RegisterInput{
		Email: email, Name: name, Password: goodPassword, PasswordConfirm: goodPassword,
	}, audit.Meta{IP: "10.1.1.1"})
	if err != nil {
		t.Fatalf("Register %s: %v", email, err)
	}
	return u, pair
}

func (f *serviceFixture) admin(t *testing.T) auth.Principal {
	t.Helper()
	u, err := f.svc.CreateSuperuser(context.Background(), "root@campus.edu", "Root Admin", goodPassword)
	if err != nil {
		t.Fatalf("CreateSuperuser: %v", err)
	}
	return f.principal(t, u.ID)
}

func (f *serviceFixture) principal(t *testing.T, id string) auth.Principal {
	t.Helper()
	p, err := f.svc.Principal(context.Background(), id)
	if err != nil {
		t.Fatalf("Principal %s: %v", id, err)
	}
	return p
}

func expectFieldError(t *testing.T, err error, fields ...string) {
	t.Helper()
	var ve *auth.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range fields {
		if !ve.Has(field) {
			t.Fatalf("expected error on %q, got %v", field, ve.Fields)
		}
	}
}

func TestRegisterThenLogin(t *testing.T) {
	f := newServiceFixture(t, false)
	u, pair := f.register(t, "Alice@Campus.edu", "Alice")
	if u.Role != auth.RoleStudent || !u.IsActive || u.IsSuperuser {
		t.Fatalf("unexpected new user: %+v", u)
	}
	if pair.AccessToken == "" {
		t.Fatal("expected an access token")
	}

	got, pair2, err := f.svc.Login(context.Background(), "alice@campus.edu", goodPassword, audit.Meta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != u.ID || got.Role != auth.RoleStudent {
		t.Fatalf("unexpected login user: %+v", got)
	}

	claims, err := f.svc.Tokens().Verify(pair2.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Role != auth.RoleStudent {
		t.Fatalf("expected student claim, got %s", claims.Role)
	}

	if groups := f.store.GroupsOf(u.ID); !slices.Equal(groups, []string{"Students"}) {
		t.Fatalf("unexpected groups: %v", groups)
	}
	entries := f.store.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Action != audit.ActionRegister || entries[1].Action != audit.ActionLogin || !entries[1].Success {
		t.Fatalf("unexpected audit trail: %+v", entries)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t, false)
	f.register(t, "alice@campus.edu", "Alice")

	_, _, err := f.svc.Register(context.Background(), auth.RegisterInput{
		Email: "ALICE@campus.edu", Name: "Alice Two", Password: goodPassword, PasswordConfirm: goodPassword,
	}, audit.Meta{})
	expectFieldError(t, err, "email")
}

func TestWrongPasswordTwiceIsAudited(t *testing.T) {
	f := newServiceFixture(t, false)
	f.register(t, "alice@campus.edu", "Alice")

	for i := 0; i < 2; i++ {
		_, _, err := f.svc.Login(context.Background(), "alice@campus.edu", "Wrong!Pass1", audit.Meta{IP: "10.9.9.9"})
		expectErr(t, err, auth.ErrBadCredentials, auth.ErrUnauthenticated)
	}

	var failed int
	for _, e := range f.store.Entries() {
		if e.Action == audit.ActionLogin && !e.Success {
			failed++
			if e.UserID != "" {
				t.Fatalf("failed login must not name a user, got %q", e.UserID)
			}
		}
	}
	if failed != 2 {
		t.Fatalf("expected 2 failed login entries, got %d", failed)
	}

	events := f.store.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 security events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.EventType != audit.EventFailedLogin || ev.Severity != audit.SeverityMedium || ev.IP != "10.9.9.9" {
			t.Fatalf("unexpected security event: %+v", ev)
		}
	}
}

func TestLoginUnknownEmailAndMissingFields(t *testing.T) {
	f := newServiceFixture(t, false)
	_, _, err := f.svc.Login(context.Background(), "ghost@campus.edu", goodPassword, audit.Meta{})
	expectErr(t, err, auth.ErrBadCredentials)

	_, _, err = f.svc.Login(context.Background(), "", "", audit.Meta{})
	expectFieldError(t, err, "email", "password")
}

func TestDeactivatedUser(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()
	admin := f.admin(t)
	u, pair := f.register(t, "bob@campus.edu", "Bob")

	updated, err := f.svc.ToggleActive(ctx, admin, u.ID, audit.Meta{})
	if err != nil {
		t.Fatalf("ToggleActive: %v", err)
	}
	if updated.IsActive {
		t.Fatal("expected bob to be deactivated")
	}

	_, _, err = f.svc.Login(ctx, "bob@campus.edu", goodPassword, audit.Meta{})
	expectErr(t, err, auth.ErrInactive)

	p, _, err := f.svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("the token itself is still valid: %v", err)
	}
	expectErr(t, auth.Authorize(&p, auth.Authenticated()), auth.ErrInactive)

	_, err = f.svc.GetProfile(ctx, p, u.ID, audit.Meta{})
	expectErr(t, err, auth.ErrInactive)

	_, _, err = f.svc.Refresh(ctx, pair.RefreshToken)
	expectErr(t, err, auth.ErrInactive)
}

func TestAliceBecomesCDSOwner(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()
	admin := f.admin(t)
	alice, pair := f.register(t, "alice@campus.edu", "Alice")

	p, _, err := f.svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	expectErr(t, auth.Authorize(&p, auth.RoleIn(auth.RoleCDSOwner)), auth.ErrForbidden)

	changed, err := f.svc.ChangeRole(ctx, admin, alice.ID, "cds_owner", audit.Meta{})
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if changed.Role != auth.RoleCDSOwner {
		t.Fatalf("expected cds_owner, got %s", changed.Role)
	}
	if groups := f.store.GroupsOf(alice.ID); !slices.Equal(groups, []string{"CDS Owners"}) {
		t.Fatalf("unexpected groups: %v", groups)
	}

	old, err := f.svc.Tokens().Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify old token: %v", err)
	}
	if old.Role != auth.RoleStudent {
		t.Fatalf("old token must keep the student claim, got %s", old.Role)
	}

	next, _, err := f.svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	p, claims, err := f.svc.Authenticate(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate refreshed: %v", err)
	}
	if claims.Role != auth.RoleCDSOwner {
		t.Fatalf("expected cds_owner claim, got %s", claims.Role)
	}
	if err := auth.Authorize(&p, auth.RoleIn(auth.RoleCDSOwner)); err != nil {
		t.Fatalf("cds_owner gate must pass: %v", err)
	}
	if !p.HasPermission(auth.PermManageCDSItems) || p.HasPermission(auth.PermPlaceOrders) {
		t.Fatalf("unexpected permissions: %v", p.PermissionList())
	}

	var roleChanges int
	for _, e := range f.store.Entries() {
		if e.Action != audit.ActionRoleChange {
			continue
		}
		roleChanges++
		if e.UserID != admin.User.ID || e.Details["old_role"] != "student" || e.Details["new_role"] != "cds_owner" {
			t.Fatalf("unexpected role change entry: %+v", e)
		}
	}
	if roleChanges != 1 {
		t.Fatalf("expected 1 role change entry, got %d", roleChanges)
	}
}

func TestChangeRoleValidation(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()
	admin := f.admin(t)
	bob, _ := f.register(t, "bob@campus.edu", "Bob")

	_, err := f.svc.ChangeRole(ctx, f.principal(t, bob.ID), bob.ID, "cds_owner", audit.Meta{})
	expectErr(t, err, auth.ErrForbidden)

	_, err = f.svc.ChangeRole(ctx, admin, bob.ID, "wizard", audit.Meta{})
	expectFieldError(t, err, "role")

	_, err = f.svc.ChangeRole(ctx, admin, "missing", "student", audit.Meta{})
	expectErr(t, err, auth.ErrNotFound)
}

func TestToggleActiveRules(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()
	admin := f.admin(t)
	bob, _ := f.register(t, "bob@campus.edu", "Bob")

	_, err := f.svc.ToggleActive(ctx, admin, admin.User.ID, audit.Meta{})
	expectErr(t, err, auth.ErrSelfAction, auth.ErrInvalidInput)

	_, err = f.svc.ToggleActive(ctx, f.principal(t, bob.ID), admin.User.ID, audit.Meta{})
	expectErr(t, err, auth.ErrForbidden)

	off, err := f.svc.ToggleActive(ctx, admin, bob.ID, audit.Meta{})
	if err != nil || off.IsActive {
		t.Fatalf("expected deactivation, got %+v (%v)", off, err)
	}
	on, err := f.svc.ToggleActive(ctx, admin, bob.ID, audit.Meta{})
	if err != nil || !on.IsActive {
		t.Fatalf("expected reactivation, got %+v (%v)", on, err)
	}
}

func TestProfileAccess(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()
	admin := f.admin(t)
	alice, _ := f.register(t, "alice@campus.edu", "Alice")
	bob, _ := f.register(t, "bob@campus.edu", "Bob")

	_, err := f.svc.GetProfile(ctx, f.principal(t, bob.ID), alice.ID, audit.Meta{})
	expectErr(t, err, auth.ErrForbidden)

	got, err := f.svc.GetProfile(ctx, admin, alice.ID, audit.Meta{})
	if err != nil {
		t.Fatalf("GetProfile as admin: %v", err)
	}
	if got.Email != alice.Email {
		t.Fatalf("unexpected profile %s", got.Email)
	}

	_, err = f.svc.GetProfile(ctx, admin, "missing", audit.Meta{})
	expectErr(t, err, auth.ErrNotFound)

	name := "Alice Liddell"
	updated, err := f.svc.UpdateProfile(ctx, f.principal(t, alice.ID), alice.ID, auth.ProfileUpdate{Name: &name}, audit.Meta{})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Name != "Alice Liddell" {
		t.Fatalf("unexpected name %q", updated.Name)
	}

	_, err = f.svc.UpdateProfile(ctx, f.principal(t, bob.ID), alice.ID, auth.ProfileUpdate{Name: &name}, audit.Meta{})
	expectErr(t, err, auth.ErrForbidden)

	var access, edits int
	for _, e := range f.store.Entries() {
		switch e.Action {
		case audit.ActionDataAccess:
			access++
		case audit.ActionProfileUpdate:
			edits++
		}
	}
	if access != 1 {
		t.Fatalf("only reads of another user's data are recorded, got %d", access)
	}
	if edits != 1 {
		t.Fatalf("expected 1 profile update entry, got %d", edits)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()
	u, pair := f.register(t, "alice@campus.edu", "Alice")

	if err := f.svc.Logout(ctx, f.principal(t, u.ID), pair.RefreshToken, audit.Meta{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, _, err := f.svc.Refresh(ctx, pair.RefreshToken)
	expectErr(t, err, auth.ErrTokenRevoked)

	if err := f.svc.Logout(ctx, f.principal(t, u.ID), "already-invalid", audit.Meta{}); err != nil {
		t.Fatalf("logout with an invalid token must succeed: %v", err)
	}
}

func TestRefreshRequiresToken(t *testing.T) {
	f := newServiceFixture(t, false)
	_, _, err := f.svc.Refresh(context.Background(), " ")
	expectErr(t, err, auth.ErrInvalidInput)
}

func TestCheckPermissionAndGroupGrants(t *testing.T) {
	f := newServiceFixture(t, false)
	u, _ := f.register(t, "alice@campus.edu", "Alice")
	p := f.principal(t, u.ID)

	check := func(p auth.Principal, key string, want bool) {
		t.Helper()
		ok, err := f.svc.CheckPermission(p, key)
		if err != nil {
			t.Fatalf("CheckPermission %s: %v", key, err)
		}
		if ok != want {
			t.Fatalf("CheckPermission %s: want %v, got %v", key, want, ok)
		}
	}
	check(p, auth.PermPlaceOrders, true)
	check(p, auth.PermViewAnalytics, false)

	f.store.CreateGroup("Analysts", auth.PermViewAnalytics)
	if err := f.store.AddToGroup(u.ID, "Analysts"); err != nil {
		t.Fatalf("AddToGroup: %v", err)
	}
	check(f.principal(t, u.ID), auth.PermViewAnalytics, true)

	_, err := f.svc.CheckPermission(p, "")
	expectErr(t, err, auth.ErrInvalidInput)

	_, err = f.svc.CheckPermission(auth.Principal{}, auth.PermPlaceOrders)
	expectErr(t, err, auth.ErrUnauthenticated)
}

func TestListUsersAdminOnly(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()
	admin := f.admin(t)
	bob, _ := f.register(t, "bob@campus.edu", "Bob")
	f.clock.Advance(time.Second)

	_, err := f.svc.ListUsers(ctx, f.principal(t, bob.ID), auth.UserFilter{})
	expectErr(t, err, auth.ErrForbidden)

	users, err := f.svc.ListUsers(ctx, admin, auth.UserFilter{Role: auth.RoleStudent})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 students, got %d", len(users))
	}

	_, err = f.svc.ListUsers(ctx, admin, auth.UserFilter{Role: "wizard"})
	expectErr(t, err, auth.ErrInvalidInput)
}
