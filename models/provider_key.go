package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is the service type a provider key belongs to
type Category string

const (
	CategoryLLM       Category = "llm"
	CategorySTT       Category = "stt"
	CategoryTTS       Category = "tts"
	CategoryTelephony Category = "telephony"
)

// AllCategories lists every category in display order
var AllCategories = []Category{CategoryLLM, CategorySTT, CategoryTTS, CategoryTelephony}

// IsValid checks if the category is one of the known categories
func (c Category) IsValid() bool {
	switch c {
	case CategoryLLM, CategorySTT, CategoryTTS, CategoryTelephony:
		return true
	default:
		return false
	}
}

// DisplayName returns a human-readable label for the category
func (c Category) DisplayName() string {
	switch c {
	case CategoryLLM:
		return "LLM"
	case CategorySTT:
		return "Speech-to-Text"
	case CategoryTTS:
		return "Text-to-Speech"
	case CategoryTelephony:
		return "Telephony"
	default:
		return string(c)
	}
}

// ProviderKey is a user-supplied vendor credential
type ProviderKey struct {
	ID        uuid.UUID `json:"id"`
	Provider  string    `json:"provider"`
	Category  Category  `json:"category"`
	Secret    string    `json:"-"` // Never serialize the raw credential
	IsValid   bool      `json:"isValid"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// MaskedProviderKey is the representation of a key safe to show in the UI
type MaskedProviderKey struct {
	ID           uuid.UUID `json:"id"`
	Provider     string    `json:"provider"`
	Category     Category  `json:"category"`
	MaskedSecret string    `json:"maskedSecret"`
	IsValid      bool      `json:"isValid"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// visiblePrefixLen is the number of leading secret characters shown unmasked
const visiblePrefixLen = 6

// Masked returns a copy of the key with the secret reduced to its prefix
func (k ProviderKey) Masked() MaskedProviderKey {
	return MaskedProviderKey{
		ID:           k.ID,
		Provider:     k.Provider,
		Category:     k.Category,
		MaskedSecret: MaskSecret(k.Secret),
		IsValid:      k.IsValid,
		IsActive:     k.IsActive,
		CreatedAt:    k.CreatedAt,
	}
}

// MaskSecret keeps a short prefix of the secret and hides the rest.
// Secrets too short to keep a prefix without leaking most of them are fully masked.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= visiblePrefixLen*2 {
		return "****"
	}
	return string(runes[:visiblePrefixLen]) + "****"
}
