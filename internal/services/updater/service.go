package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"fracttalsync/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Options tune a Service.
type Options struct {
	// PersistEachRow saves the report after every successful submission,
	// shrinking the window where a confirmed update could lose its mark.
	// The report is always saved once more at the end of the run.
	PersistEachRow bool
	// OnRow, when set, receives every row outcome as it is decided. This is
	// the hook an embedding shell (GUI, TUI) consumes; the core itself stays
	// synchronous and callback-free without it.
	OnRow func(RowResult)
}

// Service orchestrates batch runs over activity reports.
type Service struct {
	db         *gorm.DB // nil disables run history
	store      ReportStore
	classifier *Classifier
	opts       Options

	taskStore map[string]*RunProgress
	cancels   map[string]context.CancelFunc
	taskMu    sync.RWMutex
}

// NewService creates an updater service.
func NewService(db *gorm.DB, store ReportStore, classifier *Classifier, opts Options) *Service {
	return &Service{
		db:         db,
		store:      store,
		classifier: classifier,
		opts:       opts,
		taskStore:  make(map[string]*RunProgress),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Run processes a report synchronously, strictly one row at a time. Fatal
// errors (unreadable file, missing columns, failed authentication) abort
// before any row is touched; per-row errors become Failure outcomes and
// never stop the batch. Cancellation via ctx is honoured between rows and
// already-applied statuses are still persisted.
func (s *Service) Run(ctx context.Context, client CounterClient, req RunRequest) (*RunSummary, error) {
	return s.run(ctx, client, req, nil)
}

func (s *Service) run(ctx context.Context, client CounterClient, req RunRequest, observe func(done, total int, res RowResult)) (*RunSummary, error) {
	rep, err := s.store.Load(req.FilePath)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded %s: %d rows", req.FilePath, rep.Len())

	if err := client.Authenticate(); err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	total := rep.Len()

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			summary.Canceled = true
		default:
		}
		if summary.Canceled {
			log.Printf("Run canceled after %d/%d rows", i, total)
			break
		}

		res := s.processRow(client, rep, i)
		summary.add(res)
		log.Print(res.LogLine())

		if s.opts.OnRow != nil {
			s.opts.OnRow(res)
		}
		if observe != nil {
			observe(i+1, total, res)
		}

		if res.Outcome == OutcomeSuccess && s.opts.PersistEachRow {
			if err := s.store.Save(rep); err != nil {
				summary.PersistenceFailed = true
				summary.PersistenceError = err.Error()
				log.Printf("WARNING: failed to persist status for row %d: %v", i+1, err)
			}
		}
	}

	// Final save: also creates the status column on disk when the file
	// never had one. Success here supersedes any mid-run save failure;
	// failure means already-applied rows will be resubmitted next run,
	// which the caller must be told about.
	if err := s.store.Save(rep); err != nil {
		summary.PersistenceFailed = true
		summary.PersistenceError = err.Error()
		log.Printf("ERROR: failed to persist report %s: %v", req.FilePath, err)
	} else {
		summary.PersistenceFailed = false
		summary.PersistenceError = ""
	}

	log.Printf("Run complete: %d succeeded, %d failed, %d skipped", summary.Succeeded, summary.Failed, summary.Skipped)
	return summary, nil
}

// StartRun launches a run in the background and returns its run ID. Use
// Progress to poll and Cancel to stop it between rows.
func (s *Service) StartRun(client CounterClient, req RunRequest) (string, error) {
	runID := uuid.New().String()

	progress := &RunProgress{
		RunID:     runID,
		Status:    "starting",
		Messages:  []string{fmt.Sprintf("Processing %s...", req.FilePath)},
		StartedAt: time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.taskMu.Lock()
	s.taskStore[runID] = progress
	s.cancels[runID] = cancel
	s.taskMu.Unlock()

	if s.db != nil {
		record := &models.RunRecord{
			ID:        runID,
			ProfileID: req.ProfileID,
			FilePath:  req.FilePath,
			Status:    "starting",
		}
		if err := s.db.Create(record).Error; err != nil {
			cancel()
			s.taskMu.Lock()
			delete(s.taskStore, runID)
			delete(s.cancels, runID)
			s.taskMu.Unlock()
			return "", fmt.Errorf("failed to create run record: %w", err)
		}
	}

	go s.performRun(ctx, runID, client, req)

	return runID, nil
}

// performRun executes a background run and keeps progress bookkeeping.
func (s *Service) performRun(ctx context.Context, runID string, client CounterClient, req RunRequest) {
	defer func() {
		if r := recover(); r != nil {
			s.updateProgress(runID, "error", 0, fmt.Sprintf("Panic during run: %v", r))
			log.Printf("Run panic recovered: %v", r)
		}
		s.taskMu.Lock()
		delete(s.cancels, runID)
		s.taskMu.Unlock()
	}()

	s.updateProgress(runID, "running", 0, "Starting run...")

	summary, err := s.run(ctx, client, req, func(done, total int, res RowResult) {
		pct := 0
		if total > 0 {
			pct = 100 * done / total
		}
		s.updateProgress(runID, "running", pct, res.LogLine())
	})
	if err != nil {
		s.finishRun(runID, "error", nil, err)
		return
	}

	status := "completed"
	if summary.Canceled {
		status = "canceled"
	}
	s.finishRun(runID, status, summary, nil)
}

// finishRun records the terminal state of a run in memory and in the
// run_records table.
func (s *Service) finishRun(runID, status string, summary *RunSummary, runErr error) {
	now := time.Now()

	message := fmt.Sprintf("Run %s", status)
	if runErr != nil {
		message = runErr.Error()
	} else if summary != nil {
		message = fmt.Sprintf("Run %s: %d succeeded, %d failed, %d skipped", status, summary.Succeeded, summary.Failed, summary.Skipped)
		if summary.PersistenceFailed {
			message += " (WARNING: report was not saved; successful rows may be resubmitted next run)"
		}
	}

	s.taskMu.Lock()
	if p, exists := s.taskStore[runID]; exists {
		p.Status = status
		p.Progress = 100
		p.Summary = summary
		p.CompletedAt = &now
		if runErr != nil {
			p.Error = runErr.Error()
		}
		p.Messages = append(p.Messages, message)
	}
	s.taskMu.Unlock()

	log.Printf("[%s] %s", runID, message)

	if s.db == nil {
		return
	}

	var record models.RunRecord
	if err := s.db.Where("id = ?", runID).First(&record).Error; err != nil {
		log.Printf("WARNING: failed to load run record %s: %v", runID, err)
		return
	}
	record.Status = status
	if runErr != nil {
		record.Error = runErr.Error()
	}
	if summary != nil {
		record.Succeeded = summary.Succeeded
		record.Failed = summary.Failed
		record.Skipped = summary.Skipped
		record.PersistenceFailed = summary.PersistenceFailed
		lines := make([]string, len(summary.Rows))
		for i, res := range summary.Rows {
			lines[i] = res.LogLine()
		}
		if data, err := json.Marshal(lines); err == nil {
			record.Log = string(data)
		}
	}
	if err := s.db.Save(&record).Error; err != nil {
		log.Printf("WARNING: failed to save run record %s: %v", runID, err)
	}
}

// Progress returns the live progress of a background run, falling back to
// the run_records table for runs from earlier sessions.
func (s *Service) Progress(runID string) (*RunProgress, error) {
	s.taskMu.RLock()
	if live, exists := s.taskStore[runID]; exists {
		// Snapshot so callers never see a struct the run goroutine is
		// still mutating.
		snapshot := *live
		snapshot.Messages = append([]string(nil), live.Messages...)
		s.taskMu.RUnlock()
		return &snapshot, nil
	}
	s.taskMu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	var record models.RunRecord
	if err := s.db.Where("id = ?", runID).First(&record).Error; err != nil {
		return nil, fmt.Errorf("run not found: %w", err)
	}

	progress := &RunProgress{
		RunID:     record.ID,
		Status:    record.Status,
		Progress:  100,
		Error:     record.Error,
		StartedAt: record.CreatedAt,
	}
	if record.Log != "" {
		var lines []string
		if err := json.Unmarshal([]byte(record.Log), &lines); err == nil {
			progress.Messages = lines
		}
	}
	return progress, nil
}

// Cancel requests cooperative cancellation of a background run; the current
// row finishes and completed statuses keep their marks.
func (s *Service) Cancel(runID string) bool {
	s.taskMu.Lock()
	cancel, exists := s.cancels[runID]
	s.taskMu.Unlock()

	if !exists {
		return false
	}
	cancel()
	return true
}

// updateProgress updates the in-memory progress of a background run.
func (s *Service) updateProgress(runID, status string, progress int, message string) {
	s.taskMu.Lock()
	if p, exists := s.taskStore[runID]; exists {
		p.Status = status
		p.Progress = progress
		p.Messages = append(p.Messages, message)
	}
	s.taskMu.Unlock()
}
