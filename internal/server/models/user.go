package models

import "time"

// User is a retro owner authenticated through the identity provider.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionGrant records that a browser session unlocked a retro.
type SessionGrant struct {
	SessionID string
	RetroSlug string
	CreatedAt time.Time
}
