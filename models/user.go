package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        *string   `db:"email" json:"email,omitempty"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	FirebaseUID  *string   `db:"firebase_uid" json:"-"`
	Temporary    bool      `db:"is_temporary" json:"isTemporary"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	LastActivity time.Time `db:"last_activity" json:"lastActivity"`
}
