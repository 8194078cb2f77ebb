package scheduler

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"fracttalsync/internal/models"
)

// Service keeps recurring sync runs: each job pairs a cron expression with a
// credential profile and a report file path. Job definitions live in the
// scheduled_jobs table so they survive restarts.
type Service struct {
	db     *gorm.DB
	cron   *cron.Cron
	runner Runner
	jobs   map[string]cron.EntryID // jobID -> cron entry ID
	jobsMu sync.RWMutex
}

// NewService creates a new scheduler service.
func NewService(db *gorm.DB, runner Runner) *Service {
	return &Service{
		db:     db,
		cron:   cron.New(cron.WithSeconds()),
		runner: runner,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Start launches the cron engine and registers all enabled jobs from the
// database.
func (s *Service) Start() error {
	log.Println("Starting scheduler...")
	s.cron.Start()

	var jobs []models.ScheduledJob
	if err := s.db.Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}

	for _, job := range jobs {
		if err := s.scheduleJob(&job); err != nil {
			log.Printf("WARNING: Failed to schedule job %s (%s): %v", job.Name, job.ID, err)
		} else {
			log.Printf("Scheduled job: %s (%s) with cron: %s", job.Name, job.ID, job.Cron)
		}
	}

	log.Printf("Scheduler started with %d enabled jobs", len(jobs))
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		log.Println("Scheduler stopped")
	}
}

// ListJobs retrieves all scheduled jobs.
func (s *Service) ListJobs() ([]JobListResponse, error) {
	var jobs []models.ScheduledJob
	if err := s.db.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	responses := make([]JobListResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = toJobListResponse(&job)
	}
	return responses, nil
}

// UpsertJob creates or updates a scheduled job, keyed by name.
func (s *Service) UpsertJob(req UpsertJobRequest) (string, error) {
	if req.Name == "" || req.ProfileID == "" || req.FilePath == "" || req.Cron == "" {
		return "", fmt.Errorf("name, profile_id, file_path, and cron are required")
	}

	// Accept both plain 5-field cron and the 6-field form with seconds.
	normalizedCron, err := normalizeCron(req.Cron)
	if err != nil {
		return "", err
	}
	req.Cron = normalizedCron

	var job models.ScheduledJob
	result := s.db.Where("name = ?", req.Name).First(&job)
	if result.Error != nil {
		if result.Error != gorm.ErrRecordNotFound {
			return "", fmt.Errorf("failed to query job: %w", result.Error)
		}
		job = models.ScheduledJob{
			ID:   uuid.New().String(),
			Name: req.Name,
		}
	}

	job.ProfileID = req.ProfileID
	job.FilePath = req.FilePath
	job.Cron = req.Cron
	job.Enabled = req.Enabled

	nextRun, err := nextRunTime(job.Cron, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to parse cron for next run: %w", err)
	}
	job.NextRunAt = &nextRun

	if result.Error == gorm.ErrRecordNotFound {
		if err := s.db.Create(&job).Error; err != nil {
			return "", fmt.Errorf("failed to create job: %w", err)
		}
	} else {
		if err := s.db.Save(&job).Error; err != nil {
			return "", fmt.Errorf("failed to update job: %w", err)
		}
	}

	if err := s.rescheduleJob(job.ID); err != nil {
		return "", fmt.Errorf("failed to reschedule job: %w", err)
	}
	return job.ID, nil
}

// DeleteJob removes a scheduled job.
func (s *Service) DeleteJob(jobID string) error {
	s.jobsMu.Lock()
	if entryID, exists := s.jobs[jobID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, jobID)
	}
	s.jobsMu.Unlock()

	if err := s.db.Delete(&models.ScheduledJob{}, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// scheduleJob adds a job to the cron scheduler.
func (s *Service) scheduleJob(job *models.ScheduledJob) error {
	if !job.Enabled {
		return nil
	}

	s.jobsMu.Lock()
	if entryID, exists := s.jobs[job.ID]; exists {
		s.cron.Remove(entryID)
	}
	s.jobsMu.Unlock()

	entryID, err := s.cron.AddFunc(job.Cron, func() {
		s.executeJob(job.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = entryID
	s.jobsMu.Unlock()
	return nil
}

// rescheduleJob reloads a job from the database and reschedules it.
func (s *Service) rescheduleJob(jobID string) error {
	var job models.ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.jobsMu.Lock()
			if entryID, exists := s.jobs[jobID]; exists {
				s.cron.Remove(entryID)
				delete(s.jobs, jobID)
			}
			s.jobsMu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}
	return s.scheduleJob(&job)
}

// executeJob fires one scheduled run and monitors it until it finishes.
func (s *Service) executeJob(jobID string) {
	log.Printf("Executing scheduled job: %s", jobID)

	var job models.ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		log.Printf("ERROR: Failed to load job %s: %v", jobID, err)
		return
	}

	now := time.Now()
	job.LastRunAt = &now
	if nextRun, err := nextRunTime(job.Cron, now); err != nil {
		log.Printf("WARNING: Failed to parse cron for next run: %v", err)
	} else {
		job.NextRunAt = &nextRun
	}
	if err := s.db.Save(&job).Error; err != nil {
		log.Printf("WARNING: Failed to update job run times: %v", err)
	}

	runID, err := s.runner.StartProfileRun(job.ProfileID, job.FilePath)
	if err != nil {
		log.Printf("ERROR: Failed to start scheduled run for job %s: %v", job.Name, err)
		return
	}
	log.Printf("Scheduled run started for %s (run: %s)", job.Name, runID)

	// Monitor in the background so one slow run cannot block the cron loop.
	go s.monitorRun(job.Name, runID)
}

// monitorRun polls a run until it reaches a terminal state, with a timeout.
func (s *Service) monitorRun(jobName, runID string) {
	timeout := time.After(30 * time.Minute)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			log.Printf("WARNING: Scheduled run %s for job %s timed out after 30 minutes", runID, jobName)
			return
		case <-ticker.C:
			progress, err := s.runner.RunProgress(runID)
			if err != nil {
				log.Printf("ERROR: Failed to get progress for run %s: %v", runID, err)
				return
			}

			switch progress.Status {
			case "completed", "canceled":
				if progress.Summary != nil {
					log.Printf("Scheduled run for %s %s: %d succeeded, %d failed, %d skipped",
						jobName, progress.Status,
						progress.Summary.Succeeded, progress.Summary.Failed, progress.Summary.Skipped)
					if progress.Summary.PersistenceFailed {
						log.Printf("WARNING: Scheduled run %s could not save the report; rows may be resubmitted", runID)
					}
				} else {
					log.Printf("Scheduled run for %s %s (run: %s)", jobName, progress.Status, runID)
				}
				return
			case "error":
				log.Printf("ERROR: Scheduled run for %s failed: %s", jobName, progress.Error)
				return
			}
		}
	}
}

// normalizeCron converts 5-field cron to 6-field format by prepending seconds.
// 5-field: "minute hour day month dow" (standard cron)
// 6-field: "second minute hour day month dow" (robfig/cron with WithSeconds)
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)

	fields := strings.Fields(cronExpr)
	if len(fields) == 6 {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(cronExpr); err == nil {
			return cronExpr, nil
		}
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		// Prepend seconds (0 = run at 0 seconds of the minute)
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}

func nextRunTime(cronExpr string, from time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

func toJobListResponse(job *models.ScheduledJob) JobListResponse {
	resp := JobListResponse{
		ID:        job.ID,
		Name:      job.Name,
		ProfileID: job.ProfileID,
		FilePath:  job.FilePath,
		Cron:      job.Cron,
		Enabled:   job.Enabled,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}
	if job.LastRunAt != nil {
		lastRun := job.LastRunAt.Format(time.RFC3339)
		resp.LastRunAt = &lastRun
	}
	if job.NextRunAt != nil {
		nextRun := job.NextRunAt.Format(time.RFC3339)
		resp.NextRun = &nextRun
	}
	return resp
}
