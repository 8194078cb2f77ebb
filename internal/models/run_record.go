package models

import (
	"time"
)

// RunRecord is the durable history of one batch run over a report file.
type RunRecord struct {
	ID                string    `gorm:"primaryKey" json:"id"` // UUID run ID
	ProfileID         string    `gorm:"column:profile_id" json:"profile_id"`
	FilePath          string    `gorm:"not null;column:file_path" json:"file_path"`
	Status            string    `gorm:"not null;default:starting" json:"status"` // starting, running, completed, canceled, error
	Succeeded         int       `gorm:"not null;default:0" json:"succeeded"`
	Failed            int       `gorm:"not null;default:0" json:"failed"`
	Skipped           int       `gorm:"not null;default:0" json:"skipped"`
	PersistenceFailed bool      `gorm:"column:persistence_failed" json:"persistence_failed"`
	Log               string    `gorm:"type:text" json:"log"` // JSON array of per-row log lines
	Error             string    `gorm:"type:text" json:"error"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (RunRecord) TableName() string {
	return "run_records"
}
