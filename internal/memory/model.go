package memory

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidThreadID indicates that a thread identifier is empty or exceeds storage bounds.
	ErrInvalidThreadID = errors.New("memory: invalid thread id")
	// ErrInvalidTimestamp indicates that a unix timestamp value is not positive.
	ErrInvalidTimestamp = errors.New("memory: invalid unix timestamp")
)

// ThreadID represents a validated thread identifier. A thread is the isolation
// partition for one user's meeting history, or for the shared thread.
type ThreadID string

// NewThreadID validates raw input and returns a ThreadID.
func NewThreadID(rawInput string) (ThreadID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidThreadID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidThreadID, maxIdentifierLength)
	}
	return ThreadID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ThreadID) String() string {
	return string(id)
}

// Tag returns the bracketed label prefix used when a meeting is republished
// into the shared thread, e.g. "[alice] ".
func (id ThreadID) Tag() string {
	return "[" + string(id) + "] "
}

// TagTLDR prefixes a tl;dr with this thread's label for shared-thread rows.
func (id ThreadID) TagTLDR(tldr string) string {
	return id.Tag() + tldr
}

// UnixTimestamp represents a validated unix timestamp in seconds.
type UnixTimestamp int64

// NewUnixTimestamp validates the value and returns a UnixTimestamp.
func NewUnixTimestamp(value int64) (UnixTimestamp, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTimestamp, value)
	}
	return UnixTimestamp(value), nil
}

// Int64 exposes the raw unix seconds value.
func (ts UnixTimestamp) Int64() int64 {
	return int64(ts)
}

// Meeting models one summarized transcript. Rows are append-only: corrections
// create a new row, never an update.
type Meeting struct {
	ID               uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	ThreadID         string `gorm:"column:thread_id;size:190;not null;index:idx_meetings_thread_created,priority:1"`
	TimestampSeconds int64  `gorm:"column:timestamp_s;not null"`
	TLDR             string `gorm:"column:tldr;type:text;not null"`
	SummaryJSON      string `gorm:"column:summary_json;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_meetings_thread_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Meeting) TableName() string {
	return "meetings"
}

// ActionItem is a task extracted from a meeting. It is exclusively owned by
// its meeting and purged with it. Only the sync reconciler mutates the
// external task id column.
type ActionItem struct {
	ID               uint64  `gorm:"column:id;primaryKey;autoIncrement"`
	MeetingID        uint64  `gorm:"column:meeting_id;not null;index:idx_action_items_meeting"`
	Task             string  `gorm:"column:task;type:text;not null"`
	Owner            string  `gorm:"column:owner;size:190;not null;default:''"`
	DueDate          *string `gorm:"column:due_date;size:64"`
	ExternalTaskID   *string `gorm:"column:external_task_id;size:190"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ActionItem) TableName() string {
	return "action_items"
}

// Decision is a decision extracted from a meeting. Informational only, never
// synced externally.
type Decision struct {
	ID               uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	MeetingID        uint64 `gorm:"column:meeting_id;not null;index:idx_decisions_meeting"`
	Decision         string `gorm:"column:decision;type:text;not null"`
	Owner            string `gorm:"column:owner;size:190;not null;default:''"`
	Context          string `gorm:"column:context;type:text;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Decision) TableName() string {
	return "decisions"
}

// CalendarMirror is the local record of a calendar event created on the
// external scheduling service. Created and deleted only by the sync
// reconciler.
type CalendarMirror struct {
	ID               uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	MeetingID        uint64 `gorm:"column:meeting_id;not null;index:idx_calendar_mirror_meeting"`
	ExternalEventID  string `gorm:"column:external_event_id;size:190;not null"`
	Title            string `gorm:"column:title;type:text;not null"`
	StartTimeSeconds int64  `gorm:"column:start_time_s;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CalendarMirror) TableName() string {
	return "calendar_mirror"
}

// NewActionItem describes one action item to append alongside a meeting.
type NewActionItem struct {
	Task    string
	Owner   string
	DueDate *string
}

// NewDecision describes one decision to append alongside a meeting.
type NewDecision struct {
	Decision string
	Owner    string
	Context  string
}
