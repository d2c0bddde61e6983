package models

import "time"

// Tool is owned by the listing subsystem; conversations reference it as their
// subject anchor.
type Tool struct {
	ID        int       `db:"id" json:"id"`
	OwnerID   int       `db:"owner_id" json:"owner_id"`
	Title     string    `db:"title" json:"title"`
	Available bool      `db:"available" json:"available"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
