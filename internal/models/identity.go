// Package models holds the data types shared between the access core, the
// credential broker, the federation protocol and the transport layer.
package models

import "strings"

// Identity describes one end user. Records are created on first contact
// (a sponsor adding a new follower, or an administrator bootstrap) and
// refreshed whenever a newer profile arrives; they are never deleted, only
// dropped from the reachable set.
type Identity struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Language  string `json:"language,omitempty"`
}

// DisplayName returns the human-readable name, falling back to the user id.
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if name == "" {
		return i.UserID
	}
	return name
}

// Merge overlays the non-empty profile fields of other onto i, keeping the
// user id. Used when a fresher profile arrives from a collaborator.
func (i Identity) Merge(other Identity) Identity {
	if other.FirstName != "" {
		i.FirstName = other.FirstName
	}
	if other.LastName != "" {
		i.LastName = other.LastName
	}
	if other.Language != "" {
		i.Language = other.Language
	}
	return i
}
