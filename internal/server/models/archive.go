package models

import "time"

// Archive groups the items and action items swept out of a retro at one
// archival.
type Archive struct {
	ID        int64     `json:"id"`
	RetroID   int64     `json:"retro_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchiveSnapshot is the exported content of an archive.
type ArchiveSnapshot struct {
	Retro       RetroSummary `json:"retro"`
	Archive     Archive      `json:"archive"`
	Items       []Item       `json:"items"`
	ActionItems []ActionItem `json:"action_items"`
}

// RetroSummary is the public part of a retro embedded in snapshots and emails.
type RetroSummary struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Summary returns the public identity of r.
func (r *Retro) Summary() RetroSummary {
	return RetroSummary{ID: r.ID, Slug: r.Slug, Name: r.Name}
}
