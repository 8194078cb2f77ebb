package scheduler

import "fracttalsync/internal/services/updater"

// Runner starts background sync runs for the scheduler. The application
// shell implements it on top of the updater service, resolving the stored
// credential profile into an authenticated API client.
type Runner interface {
	StartProfileRun(profileID, filePath string) (string, error)
	RunProgress(runID string) (*updater.RunProgress, error)
}

// JobListResponse represents a scheduled job in list responses.
type JobListResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ProfileID string  `json:"profile_id"`
	FilePath  string  `json:"file_path"`
	Cron      string  `json:"cron"`
	Enabled   bool    `json:"enabled"`
	LastRunAt *string `json:"last_run_at"` // ISO 8601 format
	NextRun   *string `json:"next_run"`    // ISO 8601 format
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// UpsertJobRequest represents a request to create or update a scheduled job.
type UpsertJobRequest struct {
	Name      string `json:"name"`
	ProfileID string `json:"profile_id"`
	FilePath  string `json:"file_path"`
	Cron      string `json:"cron"`
	Enabled   bool   `json:"enabled"`
}
