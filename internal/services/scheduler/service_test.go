package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCron(t *testing.T) {
	t.Run("Should convert 5-field to 6-field cron", func(t *testing.T) {
		tests := []struct {
			name     string
			input    string
			expected string
		}{
			{
				name:     "Daily at 2 AM",
				input:    "0 2 * * *",
				expected: "0 0 2 * * *",
			},
			{
				name:     "Every 15 minutes",
				input:    "*/15 * * * *",
				expected: "0 */15 * * * *",
			},
			{
				name:     "Every Monday at 9 AM",
				input:    "0 9 * * 1",
				expected: "0 0 9 * * 1",
			},
			{
				name:     "First day of month at midnight",
				input:    "0 0 1 * *",
				expected: "0 0 0 1 * *",
			},
			{
				name:     "At 3:30 PM every day",
				input:    "30 15 * * *",
				expected: "0 30 15 * * *",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			})
		}
	})

	t.Run("Should keep 6-field cron unchanged", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{
				name:  "6-field daily at 2 AM",
				input: "0 0 2 * * *",
			},
			{
				name:  "6-field every 15 minutes",
				input: "0 */15 * * * *",
			},
			{
				name:  "6-field with seconds",
				input: "30 0 2 * * 1",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.input, result)
			})
		}
	})

	t.Run("Should fail with invalid field count", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{
				name:  "Too few fields (4)",
				input: "0 2 * *",
			},
			{
				name:  "Too many fields (7)",
				input: "0 0 2 * * * 2026",
			},
			{
				name:  "Empty string",
				input: "",
			},
			{
				name:  "Single field",
				input: "*",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := normalizeCron(tt.input)
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid cron expression")
			})
		}
	})

	t.Run("Should handle cron with extra whitespace", func(t *testing.T) {
		input := "  0   2   *   *   *  "
		// The function trims leading/trailing but keeps internal whitespace structure
		expected := "0 0   2   *   *   *"

		result, err := normalizeCron(input)
		require.NoError(t, err)
		assert.Equal(t, expected, result)
	})
}

func TestFleetScheduleExamples(t *testing.T) {
	// Schedules the workshop actually uses for report processing
	t.Run("Should convert typical report schedules", func(t *testing.T) {
		tests := []struct {
			name       string
			cron5Field string
			cron6Field string
		}{
			{"Weekly after the Monday report", "0 8 * * 1", "0 0 8 * * 1"},
			{"Nightly catch-up", "0 3 * * *", "0 0 3 * * *"},
			{"Weekdays at shift end", "0 18 * * 1-5", "0 0 18 * * 1-5"},
			{"Twice a day", "0 6,18 * * *", "0 0 6,18 * * *"},
			{"Every other hour", "0 */2 * * *", "0 0 */2 * * *"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.cron5Field)
				require.NoError(t, err)
				assert.Equal(t, tt.cron6Field, result)
			})
		}
	})
}

func TestNextRunTime(t *testing.T) {
	t.Run("Should compute the next firing from a 6-field expression", func(t *testing.T) {
		next, err := nextRunTime("0 0 2 * * *", mustParseTime(t, "2026-08-29T10:00:00Z"))
		require.NoError(t, err)
		assert.Equal(t, "2026-08-30T02:00:00Z", next.UTC().Format("2006-01-02T15:04:05Z"))
	})

	t.Run("Should fail on garbage", func(t *testing.T) {
		_, err := nextRunTime("not a cron", mustParseTime(t, "2026-08-29T10:00:00Z"))
		assert.Error(t, err)
	})
}

func TestUpsertJobRequest(t *testing.T) {
	t.Run("Should carry profile and file path", func(t *testing.T) {
		req := UpsertJobRequest{
			Name:      "Weekly RSV",
			ProfileID: "profile-123",
			FilePath:  "/srv/reports/rsv.xlsx",
			Cron:      "0 8 * * 1", // 5-field (will be normalized)
			Enabled:   true,
		}

		assert.Equal(t, "Weekly RSV", req.Name)
		assert.Equal(t, "profile-123", req.ProfileID)
		assert.Equal(t, "/srv/reports/rsv.xlsx", req.FilePath)
		assert.True(t, req.Enabled)
	})
}

func TestServiceCreation(t *testing.T) {
	t.Run("Should create new scheduler service", func(t *testing.T) {
		service := NewService(nil, nil)

		assert.NotNil(t, service)
		assert.NotNil(t, service.jobs)
		assert.NotNil(t, service.cron)
	})
}

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}
