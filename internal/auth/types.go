package auth

import "time"

// User is a campus account identified by email.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	IsSuperuser  bool      `json:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProfileUpdate carries self-service edits. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Phone == nil && u.ImageURL == nil
}

// Fields lists the names of the fields being changed.
func (u ProfileUpdate) Fields() []string {
	var out []string
	if u.Name != nil {
		out = append(out, "name")
	}
	if u.Phone != nil {
		out = append(out, "phone")
	}
	if u.ImageURL != nil {
		out = append(out, "image_url")
	}
	return out
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Role   Role
	Active *bool
}

// BlacklistEntry is a revoked refresh token identifier.
type BlacklistEntry struct {
	JTI           string
	UserID        string
	ExpiresAt     time.Time
	BlacklistedAt time.Time
}
