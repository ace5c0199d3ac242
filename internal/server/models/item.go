package models

import "time"

// Category is the fixed column an item is filed under.
type Category string

const (
	CategoryHappy Category = "happy"
	CategoryMeh   Category = "meh"
	CategorySad   Category = "sad"
)

// Categories lists the board columns in display order.
var Categories = []Category{CategoryHappy, CategoryMeh, CategorySad}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryHappy, CategoryMeh, CategorySad:
		return true
	}
	return false
}

// Item is a piece of feedback on a retro board.
//
// Archived is true exactly when ArchiveID is set; once archived an item is
// never modified again.
type Item struct {
	ID          int64      `json:"id"`
	RetroID     int64      `json:"retro_id"`
	Category    Category   `json:"category"`
	Description string     `json:"description"`
	VoteCount   int        `json:"vote_count"`
	Done        bool       `json:"done"`
	Archived    bool       `json:"archived"`
	ArchiveID   *int64     `json:"archive_id"`
	ArchivedAt  *time.Time `json:"archived_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ActionItem is a follow-up task of a retro. Only done action items are
// swept into an archive.
type ActionItem struct {
	ID          int64      `json:"id"`
	RetroID     int64      `json:"retro_id"`
	Description string     `json:"description"`
	Done        bool       `json:"done"`
	Archived    bool       `json:"archived"`
	ArchiveID   *int64     `json:"archive_id"`
	ArchivedAt  *time.Time `json:"archived_at"`
	CreatedAt   time.Time  `json:"created_at"`
}
