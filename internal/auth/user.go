// Package auth mirrors the identity provider's session into UI visible state.
package auth

import (
	"time"

	"github.com/usememos/saaskit/plugin/gotrue"
)

// SessionUser is the normalized user the UI renders.
type SessionUser struct {
	ID        string
	Email     string
	Name      string // empty when the provider has none
	AvatarURL string // empty when the provider has none
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName prefers the metadata name and falls back to the email.
func (u *SessionUser) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserFromSession derives a SessionUser from a provider session, nil when there is no session.
func UserFromSession(session *gotrue.Session) *SessionUser {
	if session == nil || session.User == nil {
		return nil
	}
	u := session.User
	updatedAt := u.CreatedAt
	if u.UpdatedAt != nil && !u.UpdatedAt.IsZero() {
		updatedAt = *u.UpdatedAt
	}
	return &SessionUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Metadata("name"),
		AvatarURL: u.Metadata("avatar_url"),
		CreatedAt: u.CreatedAt,
		UpdatedAt: updatedAt,
	}
}
