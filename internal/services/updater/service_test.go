package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fracttalsync/internal/report"
)

// fakeClient is an in-memory stand-in for the Fracttal API.
type fakeClient struct {
	authErr   error
	meters    map[string]float64
	submitErr map[string]error
	calls     []string
}

func newFakeClient(meters map[string]float64) *fakeClient {
	if meters == nil {
		meters = make(map[string]float64)
	}
	return &fakeClient{meters: meters, submitErr: make(map[string]error)}
}

func (f *fakeClient) Authenticate() error { return f.authErr }

func (f *fakeClient) SubmitDelta(assetID string, delta float64) (float64, error) {
	f.calls = append(f.calls, assetID)
	if err := f.submitErr[assetID]; err != nil {
		return 0, err
	}
	current, ok := f.meters[assetID]
	if !ok {
		return 0, fmt.Errorf("meter not found for asset %s", assetID)
	}
	f.meters[assetID] = current + delta
	return f.meters[assetID], nil
}

func (f *fakeClient) callsFor(assetID string) int {
	n := 0
	for _, id := range f.calls {
		if id == assetID {
			n++
		}
	}
	return n
}

// failingStore wraps a real store and fails saves on demand.
type failingStore struct {
	*report.FileStore
	failSave bool
}

func (f *failingStore) Save(r *report.Report) error {
	if f.failSave {
		return errors.New("file locked by another process")
	}
	return f.FileStore.Save(r)
}

func csvSchema() report.Schema {
	s := report.DefaultSchema()
	s.HeaderRow = 1
	return s
}

func writeReportCSV(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.csv")

	var b strings.Builder
	b.WriteString("Interno;Categoría;Km;Tiempo de marcha;Estado\n")
	for _, row := range rows {
		b.WriteString(strings.Join(row, ";") + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func newTestService(opts Options) (*Service, *report.FileStore) {
	store := report.NewFileStore(csvSchema())
	return NewService(nil, store, defaultClassifier(), opts), store
}

func TestRun(t *testing.T) {
	t.Run("Should update counters and mark rows done", func(t *testing.T) {
		// Scenario: pending truck row with a distance delta
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "120", "", ""},
		})
		client := newFakeClient(map[string]float64{"T-100": 1400})
		service, store := newTestService(Options{})

		summary, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Succeeded)
		assert.Equal(t, 0, summary.Failed)
		assert.Equal(t, 0, summary.Skipped)
		assert.False(t, summary.PersistenceFailed)
		assert.Equal(t, 1520.0, client.meters["T-100"])

		reloaded, err := store.Load(path)
		require.NoError(t, err)
		assert.Equal(t, StatusDone, reloaded.Status(0))
	})

	t.Run("Should skip rows already marked done without calling the API", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"M-7", "Maquinarias", "", "8:30", "OK"},
		})
		client := newFakeClient(nil)
		service, _ := newTestService(Options{})

		summary, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped)
		assert.Empty(t, client.calls, "already-processed rows must not reach the API")
		assert.Equal(t, "already processed", summary.Rows[0].Message)
	})

	t.Run("Should not suppress reprocessing for other status values", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "10", "", "ok"},
			{"T-101", "Camiones", "10", "", "done"},
		})
		client := newFakeClient(map[string]float64{"T-100": 0, "T-101": 0})
		service, _ := newTestService(Options{})

		summary, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Succeeded)
		assert.Len(t, client.calls, 2)
	})

	t.Run("Should fail invalid values without calling the API", func(t *testing.T) {
		// Scenario: negative distance delta
		path := writeReportCSV(t, [][]string{
			{"T-101", "Camiones", "-5", "", ""},
		})
		client := newFakeClient(map[string]float64{"T-101": 100})
		service, store := newTestService(Options{})

		summary, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		assert.Empty(t, client.calls)
		assert.Contains(t, summary.Rows[0].Message, "negative")

		reloaded, err := store.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "", reloaded.Status(0), "status must stay blank after a failure")
	})

	t.Run("Should leave status blank when the client rejects a row", func(t *testing.T) {
		// Scenario: machinery row, API reports the asset does not exist
		path := writeReportCSV(t, [][]string{
			{"M-9", "Maquinarias", "", "3:00", ""},
		})
		client := newFakeClient(nil)
		client.submitErr["M-9"] = errors.New("asset not found")
		service, store := newTestService(Options{})

		summary, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, "asset not found", summary.Rows[0].Message)

		reloaded, err := store.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "", reloaded.Status(0), "failed rows stay eligible for retry")
	})

	t.Run("Should isolate per-row failures", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "120", "", ""},
			{"T-999", "Camiones", "bad", "", ""},
			{"M-7", "Maquinarias", "", "2:15", ""},
		})
		client := newFakeClient(map[string]float64{"T-100": 0, "M-7": 50})
		service, _ := newTestService(Options{})

		summary, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Succeeded)
		assert.Equal(t, 1, summary.Failed)
		assert.Len(t, summary.Rows, 3, "every row produces exactly one outcome")
	})

	t.Run("Should skip zero deltas and blank asset ids", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "0", "", ""},
			{"", "Camiones", "10", "", ""},
		})
		client := newFakeClient(map[string]float64{"T-100": 10})
		service, _ := newTestService(Options{})

		summary, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Skipped)
		assert.Empty(t, client.calls)
		assert.Equal(t, "zero delta", summary.Rows[0].Message)
		assert.Equal(t, "missing asset id", summary.Rows[1].Message)
	})

	t.Run("Should be idempotent across runs", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "120", "", ""},
			{"M-7", "Maquinarias", "", "8:30", ""},
		})
		client := newFakeClient(map[string]float64{"T-100": 0, "M-7": 0})
		service, _ := newTestService(Options{})

		first, err := service.Run(context.Background(), client, RunRequest{FilePath: path})
		require.NoError(t, err)
		require.Equal(t, 2, first.Succeeded)

		second, err := service.Run(context.Background(), client, RunRequest{FilePath: path})
		require.NoError(t, err)

		assert.Equal(t, 0, second.Succeeded)
		assert.Equal(t, 0, second.Failed)
		assert.Equal(t, 2, second.Skipped)
		assert.Equal(t, 1, client.callsFor("T-100"), "exactly one call per pending row, ever")
		assert.Equal(t, 1, client.callsFor("M-7"))
	})

	t.Run("Should abort before any row on unreadable file", func(t *testing.T) {
		client := newFakeClient(nil)
		service, _ := newTestService(Options{})

		_, err := service.Run(context.Background(), client, RunRequest{FilePath: filepath.Join(t.TempDir(), "missing.csv")})

		var formatErr *report.FormatError
		require.ErrorAs(t, err, &formatErr)
		assert.Empty(t, client.calls)
	})

	t.Run("Should abort before any row on missing columns", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.csv")
		require.NoError(t, os.WriteFile(path, []byte("Interno;Estado\nT-100;\n"), 0644))
		client := newFakeClient(nil)
		service, _ := newTestService(Options{})

		_, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		var schemaErr *report.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Empty(t, client.calls)
	})

	t.Run("Should abort when authentication fails", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "120", "", ""},
		})
		client := newFakeClient(nil)
		client.authErr = errors.New("authentication failed: HTTP 401")
		service, _ := newTestService(Options{})

		_, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.Error(t, err)
		assert.Empty(t, client.calls)
	})

	t.Run("Should flag persistence failure but keep outcomes", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "120", "", ""},
		})
		client := newFakeClient(map[string]float64{"T-100": 0})
		store := &failingStore{FileStore: report.NewFileStore(csvSchema()), failSave: true}
		service := NewService(nil, store, defaultClassifier(), Options{})

		summary, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.NoError(t, err, "a failed save is a warning in the summary, not a run error")
		assert.Equal(t, 1, summary.Succeeded)
		assert.True(t, summary.PersistenceFailed)
		assert.Contains(t, summary.PersistenceError, "locked")
	})

	t.Run("Should stop between rows on cancellation and keep finished statuses", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "10", "", ""},
			{"T-101", "Camiones", "10", "", ""},
			{"T-102", "Camiones", "10", "", ""},
		})
		client := newFakeClient(map[string]float64{"T-100": 0, "T-101": 0, "T-102": 0})

		ctx, cancel := context.WithCancel(context.Background())
		service, store := newTestService(Options{OnRow: func(RowResult) { cancel() }})

		summary, err := service.Run(ctx, client, RunRequest{FilePath: path})

		require.NoError(t, err)
		assert.True(t, summary.Canceled)
		assert.Equal(t, 1, summary.Succeeded)
		assert.Len(t, client.calls, 1)

		reloaded, err := store.Load(path)
		require.NoError(t, err)
		assert.Equal(t, StatusDone, reloaded.Status(0), "completed rows keep their marks")
		assert.Equal(t, "", reloaded.Status(1))
	})

	t.Run("Should persist after each successful row when configured", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "10", "", ""},
			{"T-101", "Camiones", "bad", "", ""},
		})
		client := newFakeClient(map[string]float64{"T-100": 0})

		saves := 0
		store := report.NewFileStore(csvSchema())
		counting := &countingStore{FileStore: store, saves: &saves}
		service := NewService(nil, counting, defaultClassifier(), Options{PersistEachRow: true})

		_, err := service.Run(context.Background(), client, RunRequest{FilePath: path})

		require.NoError(t, err)
		// One save for the successful row plus the final save; failures do
		// not trigger per-row saves.
		assert.Equal(t, 2, saves)
	})
}

type countingStore struct {
	*report.FileStore
	saves *int
}

func (c *countingStore) Save(r *report.Report) error {
	*c.saves++
	return c.FileStore.Save(r)
}

func TestStartRun(t *testing.T) {
	t.Run("Should run in the background and expose progress", func(t *testing.T) {
		path := writeReportCSV(t, [][]string{
			{"T-100", "Camiones", "120", "", ""},
			{"M-7", "Maquinarias", "", "1:30", ""},
		})
		client := newFakeClient(map[string]float64{"T-100": 0, "M-7": 0})
		service, _ := newTestService(Options{})

		runID, err := service.StartRun(client, RunRequest{FilePath: path})
		require.NoError(t, err)
		require.NotEmpty(t, runID)

		progress := waitForRun(t, service, runID)
		assert.Equal(t, "completed", progress.Status)
		require.NotNil(t, progress.Summary)
		assert.Equal(t, 2, progress.Summary.Succeeded)
		assert.NotEmpty(t, progress.Messages)
	})

	t.Run("Should report fatal errors through progress", func(t *testing.T) {
		service, _ := newTestService(Options{})
		client := newFakeClient(nil)

		runID, err := service.StartRun(client, RunRequest{FilePath: filepath.Join(t.TempDir(), "nope.csv")})
		require.NoError(t, err)

		progress := waitForRun(t, service, runID)
		assert.Equal(t, "error", progress.Status)
		assert.NotEmpty(t, progress.Error)
	})

	t.Run("Should clean up tracking when the history insert fails", func(t *testing.T) {
		// Nothing listens on port 1, so the first query fails.
		db, err := gorm.Open(postgres.Open("host=127.0.0.1 port=1 user=none dbname=none sslmode=disable"), &gorm.Config{
			DisableAutomaticPing: true,
			Logger:               logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err)

		store := report.NewFileStore(csvSchema())
		service := NewService(db, store, defaultClassifier(), Options{})

		_, err = service.StartRun(newFakeClient(nil), RunRequest{FilePath: "whatever.csv"})
		require.Error(t, err)

		service.taskMu.RLock()
		defer service.taskMu.RUnlock()
		assert.Empty(t, service.taskStore)
		assert.Empty(t, service.cancels)
	})

	t.Run("Should return not found for unknown run IDs", func(t *testing.T) {
		service, _ := newTestService(Options{})

		_, err := service.Progress("no-such-run")
		assert.Error(t, err)
	})
}

func waitForRun(t *testing.T, service *Service, runID string) *RunProgress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		progress, err := service.Progress(runID)
		require.NoError(t, err)
		if progress.Status == "completed" || progress.Status == "error" || progress.Status == "canceled" {
			return progress
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish in time", runID)
	return nil
}
