package auth

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	minNameLength     = 2
	maxNameLength     = 255
)

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	namePattern    = regexp.MustCompile(`^[a-zA-Z\s.]+$`)
	phonePattern   = regexp.MustCompile(`^(\+88)?01[0-9]{9}$`)
	phoneStrip     = regexp.MustCompile(`[\s-]`)
	upperPattern   = regexp.MustCompile(`[A-Z]`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	digitPattern   = regexp.MustCompile(`\d`)
	specialPattern = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

	commonPasswords = map[string]struct{}{
		"password": {}, "12345678": {}, "qwerty": {}, "abc123": {},
		"password123": {}, "123456789": {}, "admin": {}, "user": {},
		"password1!": {}, "qwerty123!": {}, "welcome1!": {},
	}

	imageExtensions = map[string]struct{}{".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}}
)

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Phone           string `json:"phone,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
}

// Validate normalizes the input in place and collects every field error.
func (in *RegisterInput) Validate() error {
	ve := &ValidationError{}

	email, msg := checkEmail(in.Email)
	if msg != "" {
		ve.Add("email", msg)
	}
	in.Email = email

	name, msg := checkName(in.Name)
	if msg != "" {
		ve.Add("name", msg)
	}
	in.Name = name

	for _, m := range checkPassword(in.Password) {
		ve.Add("password", m)
	}
	if in.PasswordConfirm == "" {
		ve.Add("password_confirm", "Password confirmation is required")
	} else if in.Password != in.PasswordConfirm {
		ve.Add("password_confirm", "Passwords do not match")
	}

	phone, msg := checkPhone(in.Phone)
	if msg != "" {
		ve.Add("phone", msg)
	}
	in.Phone = phone

	if msg := checkImageURL(in.ImageURL); msg != "" {
		ve.Add("image_url", msg)
	}
	in.ImageURL = strings.TrimSpace(in.ImageURL)

	return ve.Err()
}

// ValidateProfile normalizes the non-nil fields of upd and collects field errors.
func ValidateProfile(upd *ProfileUpdate) error {
	ve := &ValidationError{}
	if upd.Empty() {
		ve.Add("non_field_errors", "No profile fields provided")
		return ve
	}
	if upd.Name != nil {
		name, msg := checkName(*upd.Name)
		if msg != "" {
			ve.Add("name", msg)
		}
		upd.Name = &name
	}
	if upd.Phone != nil {
		phone, msg := checkPhone(*upd.Phone)
		if msg != "" {
			ve.Add("phone", msg)
		}
		upd.Phone = &phone
	}
	if upd.ImageURL != nil {
		if msg := checkImageURL(*upd.ImageURL); msg != "" {
			ve.Add("image_url", msg)
		}
		trimmed := strings.TrimSpace(*upd.ImageURL)
		upd.ImageURL = &trimmed
	}
	return ve.Err()
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(raw string) (string, string) {
	email := NormalizeEmail(raw)
	if email == "" {
		return "", "Email is required"
	}
	if !emailPattern.MatchString(email) {
		return email, "Please enter a valid email address"
	}
	return email, ""
}

func checkName(raw string) (string, string) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	switch {
	case name == "":
		return "", "Name is required"
	case n < minNameLength:
		return name, "Name must be at least 2 characters long"
	case n > maxNameLength:
		return name, "Name must be less than 255 characters long"
	case !namePattern.MatchString(name):
		return name, "Name can only contain letters, spaces, and dots"
	case strings.Contains(name, "  "):
		return name, "Name cannot contain consecutive spaces"
	case strings.HasPrefix(name, ".") || strings.HasSuffix(name, "."):
		return name, "Name cannot start or end with a dot"
	}
	return name, ""
}

func checkPassword(password string) []string {
	if password == "" {
		return []string{"Password is required"}
	}
	var msgs []string
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		msgs = append(msgs, "Password must be at least 8 characters long")
	}
	if n > maxPasswordLength {
		msgs = append(msgs, "Password must be less than 128 characters long")
	}
	if !upperPattern.MatchString(password) {
		msgs = append(msgs, "Password must contain at least one uppercase letter")
	}
	if !lowerPattern.MatchString(password) {
		msgs = append(msgs, "Password must contain at least one lowercase letter")
	}
	if !digitPattern.MatchString(password) {
		msgs = append(msgs, "Password must contain at least one number")
	}
	if !specialPattern.MatchString(password) {
		msgs = append(msgs, `Password must contain at least one special character (!@#$%^&*(),.?":{}|<>)`)
	}
	if _, weak := commonPasswords[strings.ToLower(password)]; weak {
		msgs = append(msgs, "Password is too common. Please choose a stronger password")
	}
	return msgs
}

// checkPhone returns the cleaned number. An empty phone is allowed.
func checkPhone(raw string) (string, string) {
	phone := phoneStrip.ReplaceAllString(strings.TrimSpace(raw), "")
	if phone == "" {
		return "", ""
	}
	if !phonePattern.MatchString(phone) {
		return phone, "Phone number must be in the format: +8801XXXXXXXXX or 01XXXXXXXXX"
	}
	return phone, ""
}

func checkImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "Image must be a valid URL"
	}
	if _, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]; !ok {
		return "Only JPG, JPEG, PNG, and GIF images are allowed"
	}
	return ""
}
