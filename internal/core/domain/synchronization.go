package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidSynchronization = errors.New("invalid synchronization")
	ErrInvalidInterval        = errors.New("interval cannot be negative")
	ErrSyncNameEmpty          = errors.New("synchronization name cannot be empty")
	ErrSyncSourceMissing      = errors.New("synchronization needs a url or a service item")
	ErrSyncInvalidUserID      = errors.New("invalid user id")
	ErrSyncForbidden          = errors.New("synchronized tables are not enabled for this user")
	ErrSyncTooSoon            = errors.New("synchronization ran too recently")
)

type SyncState string

const (
	StateCreated SyncState = "created"
	StateSyncing SyncState = "syncing"
	StateSuccess SyncState = "success"
	StateFailure SyncState = "failure"
)

func (s SyncState) Valid() bool {
	switch s {
	case StateCreated, StateSyncing, StateSuccess, StateFailure:
		return true
	}
	return false
}

const (
	MaxRetries = 3

	// SyncNowTimespan is the minimum time between two user triggered runs.
	SyncNowTimespan = 900 * time.Second

	DefaultInterval = 3600

	LogKeyPrefix  = "synchronization"
	LogExpiration = 48 * time.Hour
)

const (
	msgSyncSucceeded  = "******** synchronization succeeded ********"
	msgSyncWillRetry  = "******** synchronization failed, will retry ********"
	msgSyncFailed     = "******** synchronization failed ********"
	runnerTraceFormat = "*** Runner log: %s \n***"
)

type Synchronization struct {
	ID            string     `json:"id" db:"id"`
	UserID        string     `json:"user_id" db:"user_id"`
	Name          string     `json:"name" db:"name"`
	URL           string     `json:"url" db:"url"`
	Interval      int        `json:"interval" db:"interval"`
	State         SyncState  `json:"state" db:"state"`
	RunAt         time.Time  `json:"run_at" db:"run_at"`
	RanAt         time.Time  `json:"ran_at" db:"ran_at"`
	ModifiedAt    *time.Time `json:"modified_at,omitempty" db:"modified_at"`
	ETag          string     `json:"etag,omitempty" db:"etag"`
	Checksum      string     `json:"checksum" db:"checksum"`
	RetriedTimes  int        `json:"retried_times" db:"retried_times"`
	ErrorCode     *int       `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage  *string    `json:"error_message,omitempty" db:"error_message"`
	LogID         string     `json:"log_id" db:"log_id"`
	ServiceName   string     `json:"service_name,omitempty" db:"service_name"`
	ServiceItemID string     `json:"service_item_id,omitempty" db:"service_item_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`

	// LogTrace is the runner trace of the last attempt. It is not persisted.
	LogTrace string `json:"-" db:"-"`
}

type NewSynchronizationInput struct {
	ID            string
	UserID        string
	Name          string
	URL           string
	Interval      int
	ServiceName   string
	ServiceItemID string
}

func NewSynchronization(input NewSynchronizationInput, now time.Time) (*Synchronization, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrSyncNameEmpty
	}
	if input.UserID == "" {
		return nil, ErrSyncInvalidUserID
	}
	if input.Interval < 0 {
		return nil, ErrInvalidInterval
	}

	url := strings.TrimSpace(input.URL)
	if url == "" && (input.ServiceName == "" || input.ServiceItemID == "") {
		return nil, ErrSyncSourceMissing
	}

	interval := input.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	return &Synchronization{
		ID:            input.ID,
		UserID:        input.UserID,
		Name:          name,
		URL:           url,
		Interval:      interval,
		State:         StateCreated,
		RanAt:         now,
		RunAt:         now.Add(time.Duration(interval) * time.Second),
		RetriedTimes:  0,
		Checksum:      "",
		ServiceName:   strings.TrimSpace(input.ServiceName),
		ServiceItemID: strings.TrimSpace(input.ServiceItemID),
	}, nil
}

func (s *Synchronization) IntervalDuration() time.Duration {
	return time.Duration(s.Interval) * time.Second
}

// SetInterval changes the interval and reschedules the next automatic run.
func (s *Synchronization) SetInterval(seconds int, now time.Time) error {
	if seconds < 0 {
		return ErrInvalidInterval
	}
	if seconds == 0 {
		seconds = DefaultInterval
	}
	s.Interval = seconds
	s.RunAt = now.Add(s.IntervalDuration())
	return nil
}

func (s *Synchronization) CanManuallySync(now time.Time) bool {
	return s.State == StateSuccess && s.RanAt.Add(SyncNowTimespan).Before(now)
}

func (s *Synchronization) ShouldAutoSync(now time.Time) bool {
	return s.State == StateSuccess && !s.RunAt.After(now)
}

func (s *Synchronization) Authorize(user *User) bool {
	return user != nil && user.ID == s.UserID && user.SyncTablesEnabled
}

func (s *Synchronization) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSynchronization)
	}
	if s.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidSynchronization)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidSynchronization)
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidSynchronization, s.State)
	}
	if s.URL == "" && (s.ServiceName == "" || s.ServiceItemID == "") {
		return fmt.Errorf("%w: %v", ErrInvalidSynchronization, ErrSyncSourceMissing)
	}
	return nil
}

// Touch sets the bookkeeping timestamps before a store.
func (s *Synchronization) Touch(now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

func (s *Synchronization) MarkSyncing(logID string) {
	s.State = StateSyncing
	s.LogID = logID
}

// MarkRan records the attempt time and reschedules, whatever the outcome.
func (s *Synchronization) MarkRan(now time.Time) {
	s.RanAt = now
	s.RunAt = now.Add(s.IntervalDuration())
}

// ApplySuccess returns the lines to append to the run log.
func (s *Synchronization) ApplySuccess(outcome *ImportOutcome, now time.Time) []string {
	s.LogTrace = outcome.LogTrace
	s.State = StateSuccess
	s.ETag = outcome.ETag
	s.Checksum = outcome.Checksum
	s.ErrorCode = nil
	s.ErrorMessage = nil
	s.RetriedTimes = 0
	s.RunAt = now.Add(s.IntervalDuration())
	s.ModifiedAt = outcome.LastModified
	return []string{msgSyncSucceeded}
}

// ApplyRetry leaves the state as success so the scheduler keeps picking the
// synchronization up; only the error fields tell it apart from a real success.
func (s *Synchronization) ApplyRetry(outcome *ImportOutcome) []string {
	lines := []string{msgSyncWillRetry}
	s.LogTrace = outcome.LogTrace
	if s.LogTrace != "" {
		lines = append(lines, fmt.Sprintf(runnerTraceFormat, s.LogTrace))
	}
	s.State = StateSuccess
	s.setError(outcome.ErrorCode, outcome.ErrorMessage)
	s.RetriedTimes++
	return lines
}

func (s *Synchronization) ApplyFailure(outcome *ImportOutcome) []string {
	lines := []string{msgSyncFailed}
	s.LogTrace = outcome.LogTrace
	if s.LogTrace != "" {
		lines = append(lines, fmt.Sprintf(runnerTraceFormat, s.LogTrace))
	}
	s.State = StateFailure
	s.setError(outcome.ErrorCode, outcome.ErrorMessage)
	s.RetriedTimes++
	return lines
}

// ApplyOutcome picks the success, retry or failure transition.
func (s *Synchronization) ApplyOutcome(outcome *ImportOutcome, now time.Time) []string {
	switch {
	case outcome.Success:
		return s.ApplySuccess(outcome, now)
	case s.RetriedTimes < MaxRetries:
		return s.ApplyRetry(outcome)
	default:
		return s.ApplyFailure(outcome)
	}
}

func (s *Synchronization) setError(code int, message string) {
	c := code
	m := message
	s.ErrorCode = &c
	s.ErrorMessage = &m
}

// Clear zeroes every attribute, used after the record is deleted.
func (s *Synchronization) Clear() {
	*s = Synchronization{}
}

func (s *Synchronization) String() string {
	code, msg := "", ""
	if s.ErrorCode != nil {
		code = fmt.Sprintf("%d", *s.ErrorCode)
	}
	if s.ErrorMessage != nil {
		msg = *s.ErrorMessage
	}
	modified := ""
	if s.ModifiedAt != nil {
		modified = s.ModifiedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf(
		"<Synchronization id:%q name:%q ran_at:%q run_at:%q interval:%d state:%q retried_times:%d "+
			"log_id:%q service_name:%q service_item_id:%q checksum:%q url:%q error_code:%q "+
			"error_message:%q modified_at:%q user_id:%q>",
		s.ID, s.Name, s.RanAt.Format(time.RFC3339), s.RunAt.Format(time.RFC3339), s.Interval, s.State,
		s.RetriedTimes, s.LogID, s.ServiceName, s.ServiceItemID, s.Checksum, s.URL, code,
		msg, modified, s.UserID,
	)
}
