// Package models defines server-side data models persisted in the database.
package models

import (
	"regexp"
	"strings"
	"time"
)

// MaxSlugLength bounds the length of a retro slug.
const MaxSlugLength = 64

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	slugReplacer = regexp.MustCompile(`[^a-z0-9]+`)
)

// Retro is a single retrospective board, addressed by its unique slug.
type Retro struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`

	IsPrivate    bool   `json:"is_private"`
	PasswordHash []byte `json:"-"`

	VideoLink         string `json:"video_link,omitempty"`
	HighlightedItemID *int64 `json:"highlighted_item_id"`

	MagicLinkEnabled bool   `json:"magic_link_enabled"`
	JoinToken        string `json:"-"`

	SendArchiveEmail bool   `json:"send_archive_email"`
	UserID           *int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasOwner reports whether the retro belongs to a logged-in user.
func (r *Retro) HasOwner() bool {
	return r.UserID != nil
}

// ValidSlug reports whether s may be used as a retro slug.
func ValidSlug(s string) bool {
	return len(s) <= MaxSlugLength && slugPattern.MatchString(s)
}

// Slugify derives a slug from a retro name: lowercase, runs of other
// characters collapsed into single dashes, trimmed to MaxSlugLength.
func Slugify(name string) string {
	s := slugReplacer.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxSlugLength {
		s = strings.TrimRight(s[:MaxSlugLength], "-")
	}
	return s
}
