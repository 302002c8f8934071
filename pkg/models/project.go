package models

import (
	"time"

	"github.com/google/uuid"
)

// Project owns error groups. SDKs authenticate with the project's API key;
// the raw key is shown once at creation and only its bcrypt hash is stored.
type Project struct {
	ID           uuid.UUID `db:"id"             json:"id"`
	Name         string    `db:"name"           json:"name"`
	Description  string    `db:"description"    json:"description,omitempty"`
	OwnerID      uuid.UUID `db:"owner_id"       json:"owner_id"`
	APIKeyPrefix string    `db:"api_key_prefix" json:"api_key_prefix"`
	APIKeyHash   string    `db:"api_key_hash"   json:"-"`
	CreatedAt    time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"     json:"updated_at"`
}
