package auth

import "time"

// Identity describes the signed-in administrator.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
}

// Label returns the display name, falling back to the email.
func (i Identity) Label() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Email
}

// Session is a validated, unrevoked sign-in.
type Session struct {
	ID        string
	Identity  Identity
	ExpiresAt time.Time
}

// SessionChange announces a new user for a session; a nil User means the session ended.
type SessionChange struct {
	SessionID string
	User      *Identity
}

// RevokedSession marks a session token as signed out before its expiry.
type RevokedSession struct {
	SessionID string    `gorm:"column:session_id;primaryKey;size:64"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index"`
	RevokedAt time.Time `gorm:"column:revoked_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
}

// TableName exposes the table backing revoked sessions.
func (RevokedSession) TableName() string {
	return "auth_revoked_sessions"
}
