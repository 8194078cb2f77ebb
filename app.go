package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"fracttalsync/internal/api"
	"fracttalsync/internal/config"
	"fracttalsync/internal/crypto"
	"fracttalsync/internal/database"
	"fracttalsync/internal/models"
	"fracttalsync/internal/report"
	"fracttalsync/internal/services/scheduler"
	"fracttalsync/internal/services/updater"
)

// App wires configuration, storage and services together. It is the surface
// the CLI (or any other shell) talks to.
type App struct {
	cfg              *config.Config
	db               *gorm.DB
	updaterService   *updater.Service
	schedulerService *scheduler.Service
}

// NewApp creates the application around a loaded configuration.
func NewApp(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Startup initializes encryption, the database and the services. Encryption
// is fatal because profiles cannot be stored without it.
func (a *App) Startup() error {
	if err := crypto.InitSecrets(); err != nil {
		return fmt.Errorf("encryption initialization failed: %w", err)
	}

	db, err := database.Init(a.cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	store := report.NewFileStore(report.Schema{
		HeaderRow: a.cfg.Report.HeaderRow,
		Asset:     a.cfg.Report.AssetColumn,
		Category:  a.cfg.Report.CategoryColumn,
		Distance:  a.cfg.Report.DistanceColumn,
		Runtime:   a.cfg.Report.RuntimeColumn,
		Status:    a.cfg.Report.StatusColumn,
	})
	classifier := updater.NewClassifier(a.cfg.Classifier)

	a.updaterService = updater.NewService(db, store, classifier, updater.Options{
		PersistEachRow: a.cfg.Sync.PersistEachRow,
	})

	a.schedulerService = scheduler.NewService(db, a)
	if err := a.schedulerService.Start(); err != nil {
		log.Printf("WARNING: Failed to start scheduler: %v", err)
	}

	return nil
}

// Shutdown stops the scheduler and closes the database.
func (a *App) Shutdown() {
	if a.schedulerService != nil {
		a.schedulerService.Stop()
	}
	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// Profile management

// CreateProfileRequest carries a new or updated credential profile. The
// secret arrives in plain text and is encrypted before it touches the
// database.
type CreateProfileRequest struct {
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	BaseURL   string `json:"base_url"`
	AuthURL   string `json:"auth_url"`
}

// ListProfiles returns all stored credential profiles.
func (a *App) ListProfiles() ([]models.APIProfile, error) {
	var profiles []models.APIProfile
	if err := a.db.Order("name").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// GetProfile retrieves a profile by ID or name.
func (a *App) GetProfile(idOrName string) (*models.APIProfile, error) {
	var profile models.APIProfile
	if err := a.db.Where("id = ? OR name = ?", idOrName, idOrName).First(&profile).Error; err != nil {
		return nil, fmt.Errorf("profile %q not found: %w", idOrName, err)
	}
	return &profile, nil
}

// CreateProfile stores a new credential profile.
func (a *App) CreateProfile(req CreateProfileRequest) error {
	if req.Name == "" || req.APIKey == "" || req.APISecret == "" {
		return errors.New("name, api_key, and api_secret are required")
	}

	secretEnc, err := crypto.EncryptSecret(req.APISecret)
	if err != nil {
		return err
	}

	profile := &models.APIProfile{
		Name:         req.Name,
		APIKey:       req.APIKey,
		APISecretEnc: secretEnc,
		BaseURL:      req.BaseURL,
		AuthURL:      req.AuthURL,
	}
	return a.db.Create(profile).Error
}

// UpdateProfile updates an existing profile. An empty secret keeps the
// stored one.
func (a *App) UpdateProfile(idOrName string, req CreateProfileRequest) error {
	profile, err := a.GetProfile(idOrName)
	if err != nil {
		return err
	}

	if req.Name != "" {
		profile.Name = req.Name
	}
	if req.APIKey != "" {
		profile.APIKey = req.APIKey
	}
	if req.APISecret != "" {
		secretEnc, err := crypto.EncryptSecret(req.APISecret)
		if err != nil {
			return err
		}
		profile.APISecretEnc = secretEnc
	}
	profile.BaseURL = req.BaseURL
	profile.AuthURL = req.AuthURL

	return a.db.Save(profile).Error
}

// DeleteProfile removes a credential profile.
func (a *App) DeleteProfile(idOrName string) error {
	profile, err := a.GetProfile(idOrName)
	if err != nil {
		return err
	}
	return a.db.Delete(profile).Error
}

// clientForProfile builds an authenticated-capable API client from a stored
// profile, or from configuration credentials when no profile is named.
func (a *App) clientForProfile(idOrName string) (*api.Client, error) {
	tz := time.FixedZone(fmt.Sprintf("UTC%+d", a.cfg.API.TimezoneOffsetHours), a.cfg.API.TimezoneOffsetHours*60*60)

	if idOrName == "" {
		if a.cfg.API.Key == "" || a.cfg.API.Secret == "" {
			return nil, errors.New("no profile given and no api.key/api.secret configured")
		}
		return api.NewClient(
			api.Credentials{Key: a.cfg.API.Key, Secret: a.cfg.API.Secret},
			api.Options{BaseURL: a.cfg.API.BaseURL, AuthURL: a.cfg.API.AuthURL, Timezone: tz},
		), nil
	}

	profile, err := a.GetProfile(idOrName)
	if err != nil {
		return nil, err
	}
	secret, err := crypto.DecryptSecret(profile.APISecretEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret for profile %s: %w", profile.Name, err)
	}

	opts := api.Options{BaseURL: profile.BaseURL, AuthURL: profile.AuthURL, Timezone: tz}
	if opts.BaseURL == "" {
		opts.BaseURL = a.cfg.API.BaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = a.cfg.API.AuthURL
	}
	return api.NewClient(api.Credentials{Key: profile.APIKey, Secret: secret}, opts), nil
}

// Runs

// RunFile processes a report synchronously and returns the summary.
func (a *App) RunFile(ctx context.Context, profileIDOrName, filePath string) (*updater.RunSummary, error) {
	client, err := a.clientForProfile(profileIDOrName)
	if err != nil {
		return nil, err
	}

	req := updater.RunRequest{FilePath: filePath}
	if profileIDOrName != "" {
		if profile, err := a.GetProfile(profileIDOrName); err == nil {
			req.ProfileID = profile.ID
		}
	}
	return a.updaterService.Run(ctx, client, req)
}

// StartProfileRun starts a background run for a stored profile. It is the
// entry point the scheduler fires.
func (a *App) StartProfileRun(profileID, filePath string) (string, error) {
	client, err := a.clientForProfile(profileID)
	if err != nil {
		return "", err
	}
	return a.updaterService.StartRun(client, updater.RunRequest{ProfileID: profileID, FilePath: filePath})
}

// RunProgress returns live or historical progress for a run.
func (a *App) RunProgress(runID string) (*updater.RunProgress, error) {
	return a.updaterService.Progress(runID)
}

// CancelRun requests cooperative cancellation of a background run.
func (a *App) CancelRun(runID string) bool {
	return a.updaterService.Cancel(runID)
}

// ListRuns retrieves recent run history, newest first.
func (a *App) ListRuns(limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []models.RunRecord
	if err := a.db.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Scheduled jobs

// ListScheduledJobs retrieves all scheduled jobs.
func (a *App) ListScheduledJobs() ([]scheduler.JobListResponse, error) {
	return a.schedulerService.ListJobs()
}

// UpsertScheduledJob creates or updates a scheduled job.
func (a *App) UpsertScheduledJob(req scheduler.UpsertJobRequest) (string, error) {
	// Jobs reference profiles by ID; resolve names up front so the cron
	// firing years later does not depend on a rename.
	profile, err := a.GetProfile(req.ProfileID)
	if err != nil {
		return "", err
	}
	req.ProfileID = profile.ID
	return a.schedulerService.UpsertJob(req)
}

// DeleteScheduledJob removes a scheduled job.
func (a *App) DeleteScheduledJob(jobID string) error {
	return a.schedulerService.DeleteJob(jobID)
}

// TestConnection authenticates against the API without storing anything.
func (a *App) TestConnection(profileIDOrName string) error {
	client, err := a.clientForProfile(profileIDOrName)
	if err != nil {
		return err
	}
	return client.Authenticate()
}
