package models

import (
	"time"

	"github.com/google/uuid"
)

// StoredProviderKey is a provider key as persisted, with the secret encrypted
type StoredProviderKey struct {
	ID              uuid.UUID `json:"id"`
	Provider        string    `json:"provider"`
	Category        Category  `json:"category"`
	SecretEncrypted []byte    `json:"-"` // Never expose encrypted data in JSON
	IsValid         bool      `json:"isValid"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
}
