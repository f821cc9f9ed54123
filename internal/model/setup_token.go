package model

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"gorm.io/gorm"
)

// SetupToken is a single-use invitation granting permission to create one
// family. A token is redeemable only while unexpired AND unbound; once
// FamilyID is set the token is permanently spent.
type SetupToken struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Token     string         `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"` // Never expose the raw token in JSON responses
	ExpiresAt time.Time      `json:"expires_at"`
	FamilyID  *uint          `json:"family_id,omitempty" gorm:"index"` // nil until redeemed
	CreatedBy string         `json:"created_by" gorm:"type:varchar(100)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate hook will be called before creating a new SetupToken record
func (t *SetupToken) BeforeCreate(tx *gorm.DB) (err error) {
	if t.Token == "" {
		t.Token = generateSecureToken()
	}
	return nil
}

// IsExpired checks if the token is past its expiry
func (t *SetupToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsed checks if the token has been bound to a family
func (t *SetupToken) IsUsed() bool {
	return t.FamilyID != nil
}

// generateSecureToken creates a secure random token string
func generateSecureToken() string {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		// In a real application, we would handle this error better
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
