package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIProfile is a named Fracttal credential set. The secret is stored
// encrypted; credentials never live in process-wide mutable state.
type APIProfile struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"unique;not null" json:"name"`
	APIKey       string    `gorm:"not null;column:api_key" json:"api_key"`
	APISecretEnc string    `gorm:"not null;column:api_secret_enc" json:"-"` // Encrypted, never expose in JSON
	BaseURL      string    `gorm:"column:base_url" json:"base_url"`
	AuthURL      string    `gorm:"column:auth_url" json:"auth_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (p *APIProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (APIProfile) TableName() string {
	return "api_profiles"
}
