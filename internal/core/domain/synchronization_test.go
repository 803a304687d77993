package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newSync(t *testing.T) *domain.Synchronization {
	t.Helper()
	s, err := domain.NewSynchronization(domain.NewSynchronizationInput{
		ID:     "s1",
		UserID: "u1",
		Name:   "Airports",
		URL:    "http://example.com/airports.csv",
	}, baseTime)
	require.NoError(t, err)
	return s
}

func TestNewSynchronization(t *testing.T) {
	t.Run("Success: Applies defaults", func(t *testing.T) {
		s := newSync(t)

		assert.Equal(t, domain.StateCreated, s.State)
		assert.Equal(t, domain.DefaultInterval, s.Interval)
		assert.Equal(t, 0, s.RetriedTimes)
		assert.Equal(t, "", s.Checksum)
		assert.Equal(t, baseTime, s.RanAt)
		assert.Equal(t, baseTime.Add(3600*time.Second), s.RunAt)
		assert.Empty(t, s.LogID)
	})

	t.Run("Success: Custom interval", func(t *testing.T) {
		s, err := domain.NewSynchronization(domain.NewSynchronizationInput{
			ID: "s1", UserID: "u1", Name: "n", URL: "http://x", Interval: 60,
		}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, baseTime.Add(time.Minute), s.RunAt)
	})

	t.Run("Success: Service source without url", func(t *testing.T) {
		s, err := domain.NewSynchronization(domain.NewSynchronizationInput{
			ID: "s1", UserID: "u1", Name: "n", ServiceName: "gdrive", ServiceItemID: "abc",
		}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, "gdrive", s.ServiceName)
	})

	t.Run("Error: Negative interval", func(t *testing.T) {
		_, err := domain.NewSynchronization(domain.NewSynchronizationInput{
			ID: "s1", UserID: "u1", Name: "n", URL: "http://x", Interval: -1,
		}, baseTime)
		assert.Equal(t, domain.ErrInvalidInterval, err)
	})

	t.Run("Error: Empty name", func(t *testing.T) {
		_, err := domain.NewSynchronization(domain.NewSynchronizationInput{UserID: "u1", Name: "  ", URL: "http://x"}, baseTime)
		assert.Equal(t, domain.ErrSyncNameEmpty, err)
	})

	t.Run("Error: Missing user", func(t *testing.T) {
		_, err := domain.NewSynchronization(domain.NewSynchronizationInput{Name: "n", URL: "http://x"}, baseTime)
		assert.Equal(t, domain.ErrSyncInvalidUserID, err)
	})

	t.Run("Error: No source", func(t *testing.T) {
		_, err := domain.NewSynchronization(domain.NewSynchronizationInput{UserID: "u1", Name: "n", ServiceName: "gdrive"}, baseTime)
		assert.Equal(t, domain.ErrSyncSourceMissing, err)
	})
}

func TestSynchronization_SetInterval(t *testing.T) {
	s := newSync(t)
	now := baseTime.Add(10 * time.Minute)

	require.NoError(t, s.SetInterval(7200, now))
	assert.Equal(t, 7200, s.Interval)
	assert.Equal(t, now.Add(7200*time.Second), s.RunAt)

	assert.ErrorIs(t, s.SetInterval(-5, now), domain.ErrInvalidInterval)
	assert.Equal(t, 7200, s.Interval)
}

func TestSynchronization_CanManuallySync(t *testing.T) {
	tests := []struct {
		name    string
		state   domain.SyncState
		elapsed time.Duration
		want    bool
	}{
		{"Success state, 901s elapsed", domain.StateSuccess, 901 * time.Second, true},
		{"Success state, exactly 900s", domain.StateSuccess, 900 * time.Second, false},
		{"Success state, 899s elapsed", domain.StateSuccess, 899 * time.Second, false},
		{"Failure state", domain.StateFailure, time.Hour, false},
		{"Syncing state", domain.StateSyncing, time.Hour, false},
		{"Created state", domain.StateCreated, time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSync(t)
			s.State = tt.state
			s.RanAt = baseTime
			assert.Equal(t, tt.want, s.CanManuallySync(baseTime.Add(tt.elapsed)))
		})
	}
}

func TestSynchronization_ShouldAutoSync(t *testing.T) {
	s := newSync(t)
	s.State = domain.StateSuccess
	s.RunAt = baseTime

	assert.True(t, s.ShouldAutoSync(baseTime.Add(time.Second)))
	assert.True(t, s.ShouldAutoSync(baseTime))
	assert.False(t, s.ShouldAutoSync(baseTime.Add(-time.Second)))

	s.State = domain.StateFailure
	assert.False(t, s.ShouldAutoSync(baseTime.Add(time.Hour)))
}

func TestSynchronization_ApplyOutcome(t *testing.T) {
	failed := &domain.ImportOutcome{
		Success:      false,
		ErrorCode:    1011,
		ErrorMessage: "download failed",
		LogTrace:     "row 1: boom",
	}

	t.Run("Success resets retries and errors", func(t *testing.T) {
		s := newSync(t)
		s.RetriedTimes = 2
		code := 1011
		s.ErrorCode = &code
		modified := baseTime.Add(-time.Hour)
		now := baseTime.Add(time.Minute)

		lines := s.ApplyOutcome(&domain.ImportOutcome{
			Success:      true,
			ETag:         "\"abc\"",
			Checksum:     "deadbeef",
			LastModified: &modified,
		}, now)

		assert.Equal(t, domain.StateSuccess, s.State)
		assert.Equal(t, 0, s.RetriedTimes)
		assert.Nil(t, s.ErrorCode)
		assert.Nil(t, s.ErrorMessage)
		assert.Equal(t, "\"abc\"", s.ETag)
		assert.Equal(t, "deadbeef", s.Checksum)
		assert.Equal(t, &modified, s.ModifiedAt)
		assert.Equal(t, now.Add(s.IntervalDuration()), s.RunAt)
		assert.Equal(t, []string{"******** synchronization succeeded ********"}, lines)
	})

	t.Run("Failure below the limit keeps success state", func(t *testing.T) {
		s := newSync(t)
		s.RetriedTimes = 1

		lines := s.ApplyOutcome(failed, baseTime)

		assert.Equal(t, domain.StateSuccess, s.State)
		assert.Equal(t, 2, s.RetriedTimes)
		require.NotNil(t, s.ErrorCode)
		assert.Equal(t, 1011, *s.ErrorCode)
		assert.Equal(t, "download failed", *s.ErrorMessage)
		require.Len(t, lines, 2)
		assert.Equal(t, "******** synchronization failed, will retry ********", lines[0])
		assert.Equal(t, "*** Runner log: row 1: boom \n***", lines[1])
	})

	t.Run("Failure at the limit is terminal", func(t *testing.T) {
		s := newSync(t)
		s.RetriedTimes = domain.MaxRetries

		lines := s.ApplyOutcome(failed, baseTime)

		assert.Equal(t, domain.StateFailure, s.State)
		assert.Equal(t, domain.MaxRetries+1, s.RetriedTimes)
		assert.Equal(t, "******** synchronization failed ********", lines[0])
	})

	t.Run("Three failures then a success", func(t *testing.T) {
		s := newSync(t)
		for i := 0; i < 3; i++ {
			s.ApplyOutcome(failed, baseTime)
			assert.Equal(t, domain.StateSuccess, s.State)
		}
		assert.Equal(t, 3, s.RetriedTimes)

		s.ApplyOutcome(&domain.ImportOutcome{Success: true}, baseTime)
		assert.Equal(t, domain.StateSuccess, s.State)
		assert.Equal(t, 0, s.RetriedTimes)
	})

	t.Run("Four failures end in failure", func(t *testing.T) {
		s := newSync(t)
		for i := 0; i < 4; i++ {
			s.ApplyOutcome(failed, baseTime)
		}
		assert.Equal(t, domain.StateFailure, s.State)
		assert.Equal(t, 4, s.RetriedTimes)
	})

	t.Run("Empty trace adds no runner line", func(t *testing.T) {
		s := newSync(t)
		lines := s.ApplyOutcome(&domain.ImportOutcome{ErrorCode: 1012}, baseTime)
		assert.Len(t, lines, 1)
	})
}

func TestSynchronization_MarkRan(t *testing.T) {
	s := newSync(t)
	now := baseTime.Add(2 * time.Hour)
	s.MarkRan(now)
	assert.Equal(t, now, s.RanAt)
	assert.Equal(t, now.Add(time.Hour), s.RunAt)
}

func TestSynchronization_Authorize(t *testing.T) {
	s := newSync(t)

	assert.True(t, s.Authorize(&domain.User{ID: "u1", SyncTablesEnabled: true}))
	assert.False(t, s.Authorize(&domain.User{ID: "u1", SyncTablesEnabled: false}))
	assert.False(t, s.Authorize(&domain.User{ID: "u2", SyncTablesEnabled: true}))
	assert.False(t, s.Authorize(nil))
}

func TestSynchronization_Validate(t *testing.T) {
	s := newSync(t)
	assert.NoError(t, s.Validate())

	s.ID = ""
	assert.ErrorIs(t, s.Validate(), domain.ErrInvalidSynchronization)

	s = newSync(t)
	s.State = "paused"
	assert.ErrorIs(t, s.Validate(), domain.ErrInvalidSynchronization)

	s = newSync(t)
	s.URL = ""
	assert.ErrorIs(t, s.Validate(), domain.ErrInvalidSynchronization)
}

func TestSynchronization_ClearAndString(t *testing.T) {
	s := newSync(t)
	s.LogID = "log-1"

	out := s.String()
	assert.True(t, strings.HasPrefix(out, "<Synchronization"))
	assert.Contains(t, out, `id:"s1"`)
	assert.Contains(t, out, `log_id:"log-1"`)

	s.Clear()
	assert.Equal(t, domain.Synchronization{}, *s)
}
