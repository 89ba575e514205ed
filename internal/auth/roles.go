package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the coarse-grained capability class of a user.
type Role string

const (
	RoleStudent      Role = "student"
	RoleEntrepreneur Role = "entrepreneur"
	RoleCDSOwner     Role = "cds_owner"
	RoleLaundryStaff Role = "laundry_staff"
)

// DefaultRole is assigned at registration.
const DefaultRole = RoleStudent

// Permission keys.
const (
	PermPlaceOrders         = "can_place_orders"
	PermRateProducts        = "can_rate_products"
	PermCreateProducts      = "can_create_products"
	PermManageStorefront    = "can_manage_storefront"
	PermManageCDSItems      = "can_manage_cds_items"
	PermViewCDSAnalytics    = "can_view_cds_analytics"
	PermManageCDSOrders     = "can_manage_cds_orders"
	PermManageLaundry       = "can_manage_laundry"
	PermProcessOrders       = "can_process_orders"
	PermManageUsers         = "can_manage_users"
	PermViewAllOrders       = "can_view_all_orders"
	PermViewAnalytics       = "can_view_analytics"
	PermManageEntrepreneurs = "can_manage_entrepreneurs"
	PermManageInventory     = "can_manage_inventory"
)

// Permission is a named fine-grained capability.
type Permission struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// Group is the persisted bundle of permissions backing a role.
type Group struct {
	Name        string
	Permissions []string
}

var catalog = []Permission{
	{Key: PermPlaceOrders, Description: "Place orders"},
	{Key: PermRateProducts, Description: "Rate products"},
	{Key: PermCreateProducts, Description: "Create products"},
	{Key: PermManageStorefront, Description: "Manage own storefront"},
	{Key: PermManageCDSItems, Description: "Manage CDS items"},
	{Key: PermViewCDSAnalytics, Description: "View CDS analytics"},
	{Key: PermManageCDSOrders, Description: "Manage CDS orders"},
	{Key: PermManageLaundry, Description: "Manage laundry services"},
	{Key: PermProcessOrders, Description: "Process orders"},
	{Key: PermManageUsers, Description: "Manage users"},
	{Key: PermViewAllOrders, Description: "View all orders"},
	{Key: PermViewAnalytics, Description: "View analytics"},
	{Key: PermManageEntrepreneurs, Description: "Manage entrepreneurs"},
	{Key: PermManageInventory, Description: "Manage inventory"},
}

var registry = map[Role]struct {
	group string
	perms []string
}{
	RoleStudent:      {"Students", []string{PermPlaceOrders, PermRateProducts}},
	RoleEntrepreneur: {"Entrepreneurs", []string{PermCreateProducts, PermManageStorefront, PermPlaceOrders}},
	RoleCDSOwner:     {"CDS Owners", []string{PermManageCDSItems, PermViewCDSAnalytics, PermManageCDSOrders}},
	RoleLaundryStaff: {"Laundry Staff", []string{PermManageLaundry, PermProcessOrders}},
}

// Roles lists the closed role enumeration in a stable order.
func Roles() []Role {
	return []Role{RoleStudent, RoleEntrepreneur, RoleCDSOwner, RoleLaundryStaff}
}

// ParseRole normalizes s and checks it against the enumeration.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}

// Valid reports whether r belongs to the enumeration.
func (r Role) Valid() bool {
	_, ok := registry[r]
	return ok
}

// Group returns the name of the group that backs r.
func (r Role) Group() string {
	return registry[r].group
}

func (r Role) String() string { return string(r) }

// PermissionsFor returns the static permission set of r.
func PermissionsFor(r Role) []string {
	entry, ok := registry[r]
	if !ok {
		return nil
	}
	out := make([]string, len(entry.perms))
	copy(out, entry.perms)
	return out
}

// AllPermissions returns the permission catalog.
func AllPermissions() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// KnownPermission reports whether key is part of the catalog.
func KnownPermission(key string) bool {
	for _, p := range catalog {
		if p.Key == key {
			return true
		}
	}
	return false
}

// RolePermissionMap returns role -> sorted permissions, used by the catalog endpoint.
func RolePermissionMap() map[Role][]string {
	out := make(map[Role][]string, len(registry))
	for role := range registry {
		perms := PermissionsFor(role)
		sort.Strings(perms)
		out[role] = perms
	}
	return out
}

// BuiltinGroups returns one group per role, synced into the store at startup.
func BuiltinGroups() []Group {
	groups := make([]Group, 0, len(registry))
	for _, role := range Roles() {
		groups = append(groups, Group{Name: role.Group(), Permissions: PermissionsFor(role)})
	}
	return groups
}
