package domain

import "strings"

// Identity is the authenticated user behind a connection. It is resolved once
// at connect time and trusted for the lifetime of the connection.
type Identity struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Avatar    string
	Roles     []string
}

// DisplayName joins first and last name, falling back to the email.
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if name == "" {
		return i.Email
	}
	return name
}

// HasRole reports whether the identity carries the role (case-insensitive).
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// UserSummary is the display projection attached to messages.
type UserSummary struct {
	ID        string
	FirstName string
	LastName  string
	Avatar    string
}

func (i Identity) Summary() UserSummary {
	return UserSummary{ID: i.ID, FirstName: i.FirstName, LastName: i.LastName, Avatar: i.Avatar}
}
