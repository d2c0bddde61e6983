package models

import "time"

// User is owned by the profile subsystem; the chat service reads it only to
// decorate conversations with display names.
type User struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
