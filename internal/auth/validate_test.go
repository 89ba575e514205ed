package auth

import (
	"errors"
	"slices"
	"testing"
)

func validInput() RegisterInput {
	return RegisterInput{
		Email:           " Alice@Campus.EDU ",
		Name:            " Alice B. Cooper ",
		Password:        "Str0ng!Pass",
		PasswordConfirm: "Str0ng!Pass",
		Phone:           "+880 1712-345678",
		ImageURL:        "https://cdn.campus.edu/u/alice.PNG",
	}
}

func TestRegisterInputNormalizes(t *testing.T) {
	in := validInput()
	if err := in.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if in.Email != "alice@campus.edu" {
		t.Fatalf("email not normalized: %q", in.Email)
	}
	if in.Name != "Alice B. Cooper" {
		t.Fatalf("name not trimmed: %q", in.Name)
	}
	if in.Phone != "+8801712345678" {
		t.Fatalf("phone not normalized: %q", in.Phone)
	}
}

func TestRegisterInputFieldErrors(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*RegisterInput)
		field string
	}{
		{"bad email", func(in *RegisterInput) { in.Email = "alice@" }, "email"},
		{"missing email", func(in *RegisterInput) { in.Email = " " }, "email"},
		{"short name", func(in *RegisterInput) { in.Name = "A" }, "name"},
		{"digits in name", func(in *RegisterInput) { in.Name = "R2D2" }, "name"},
		{"double space", func(in *RegisterInput) { in.Name = "Ann  Lee" }, "name"},
		{"leading dot", func(in *RegisterInput) { in.Name = ".Ann" }, "name"},
		{"weak password", func(in *RegisterInput) { in.Password, in.PasswordConfirm = "password", "password" }, "password"},
		{"mismatch", func(in *RegisterInput) { in.PasswordConfirm = "Other!Pass1" }, "password_confirm"},
		{"missing confirm", func(in *RegisterInput) { in.PasswordConfirm = "" }, "password_confirm"},
		{"phone", func(in *RegisterInput) { in.Phone = "12345" }, "phone"},
		{"image type", func(in *RegisterInput) { in.ImageURL = "https://cdn/x.bmp" }, "image_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.edit(&in)
			err := in.Validate()
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if !ve.Has(tc.field) {
				t.Fatalf("expected error on %q, fields: %v", tc.field, ve.Fields)
			}
		})
	}
}

func TestPasswordRulesAreAllReported(t *testing.T) {
	msgs := checkPassword("abc")
	for _, want := range []string{
		"Password must be at least 8 characters long",
		"Password must contain at least one uppercase letter",
		"Password must contain at least one number",
	} {
		if !slices.Contains(msgs, want) {
			t.Fatalf("missing %q in %v", want, msgs)
		}
	}
	if msgs := checkPassword("Valid#Pass9"); len(msgs) != 0 {
		t.Fatalf("expected strong password to pass, got %v", msgs)
	}
}

func TestValidateProfile(t *testing.T) {
	err := ValidateProfile(&ProfileUpdate{})
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Has("non_field_errors") {
		t.Fatalf("expected non_field_errors for an empty update, got %v", err)
	}

	name, phone := "  Bob Ray ", "01712 345 678"
	upd := ProfileUpdate{Name: &name, Phone: &phone}
	if err := ValidateProfile(&upd); err != nil {
		t.Fatalf("ValidateProfile: %v", err)
	}
	if *upd.Name != "Bob Ray" || *upd.Phone != "01712345678" {
		t.Fatalf("not normalized: %q %q", *upd.Name, *upd.Phone)
	}
	if fields := upd.Fields(); !slices.Equal(fields, []string{"name", "phone"}) {
		t.Fatalf("unexpected fields %v", fields)
	}

	empty := ""
	if err := ValidateProfile(&ProfileUpdate{Phone: &empty}); err != nil {
		t.Fatalf("clearing the phone is allowed: %v", err)
	}
}
