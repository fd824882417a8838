package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// likeEscaper neutralizes LIKE metacharacters so thread tags containing
// underscores match literally instead of as single-character wildcards.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingThread   = errors.New("thread identifier is required")
	noOpLogger         = zap.NewNop()
)

// StoreError carries an operation code alongside the underlying cause, in the
// form "<operation>.<reason>".
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the operation code for this error.
func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew            = "memory.store.new"
	opAppendMeeting       = "memory.append_meeting"
	opRecentMeetings      = "memory.recent_meetings"
	opRecentActionItems   = "memory.recent_action_items"
	opCrossThreadMeetings = "memory.cross_thread_meetings"
	opActionItems         = "memory.action_items_for_meeting"
	opSetTaskExternalID   = "memory.set_task_external_id"
	opClearTaskExternal   = "memory.clear_external_task_ids"
	opAppendMirror        = "memory.append_calendar_mirror"
	opDeleteMirrors       = "memory.delete_calendar_mirrors"
	opPurgeMeeting        = "memory.purge_meeting"
)

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig describes the dependencies of the record store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store is the thread-partitioned, append-only record store for meetings and
// their derived artifacts. It owns its database handle exclusively.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// AppendMeeting inserts a meeting together with its action items and
// decisions as one atomic unit. A half-written meeting is never observable.
func (s *Store) AppendMeeting(
	ctx context.Context,
	thread ThreadID,
	timestamp UnixTimestamp,
	tldr string,
	summaryJSON string,
	items []NewActionItem,
	decisions []NewDecision,
) (uint64, error) {
	if thread == "" {
		return 0, newStoreError(opAppendMeeting, "missing_thread", errMissingThread)
	}

	now := s.clock().UTC().Unix()
	meeting := Meeting{
		ThreadID:         thread.String(),
		TimestampSeconds: timestamp.Int64(),
		TLDR:             tldr,
		SummaryJSON:      summaryJSON,
		CreatedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&meeting).Error; err != nil {
			return err
		}
		for _, item := range items {
			row := ActionItem{
				MeetingID:        meeting.ID,
				Task:             item.Task,
				Owner:            item.Owner,
				DueDate:          item.DueDate,
				CreatedAtSeconds: now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, decision := range decisions {
			row := Decision{
				MeetingID:        meeting.ID,
				Decision:         decision.Decision,
				Owner:            decision.Owner,
				Context:          decision.Context,
				CreatedAtSeconds: now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return 0, newStoreError(opAppendMeeting, "insert", txErr)
	}

	s.logger.Debug("meeting appended",
		zap.Uint64("meeting_id", meeting.ID),
		zap.String("thread", thread.String()),
		zap.Int("action_items", len(items)),
		zap.Int("decisions", len(decisions)))
	return meeting.ID, nil
}

// RecentMeetings returns up to limit meetings for the thread, newest first.
func (s *Store) RecentMeetings(ctx context.Context, thread ThreadID, limit int) ([]Meeting, error) {
	if thread == "" {
		return nil, newStoreError(opRecentMeetings, "missing_thread", errMissingThread)
	}
	if limit <= 0 {
		return []Meeting{}, nil
	}

	var meetings []Meeting
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", thread.String()).
		Order("created_at_s DESC, id DESC").
		Limit(limit).
		Find(&meetings).Error
	if err != nil {
		return nil, newStoreError(opRecentMeetings, "query", err)
	}
	return meetings, nil
}

// RecentActionItems returns up to limit action items whose parent meeting
// belongs to the thread, newest first.
func (s *Store) RecentActionItems(ctx context.Context, thread ThreadID, limit int) ([]ActionItem, error) {
	if thread == "" {
		return nil, newStoreError(opRecentActionItems, "missing_thread", errMissingThread)
	}
	if limit <= 0 {
		return []ActionItem{}, nil
	}

	var items []ActionItem
	err := s.db.WithContext(ctx).
		Where("meeting_id IN (?)", s.db.Model(&Meeting{}).Select("id").Where("thread_id = ?", thread.String())).
		Order("created_at_s DESC, id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, newStoreError(opRecentActionItems, "query", err)
	}
	return items, nil
}

// CrossThreadMeetings returns meetings in the shared thread that did not
// originate from excludeThread, identified by the leading bracketed label on
// the tl;dr. Used to avoid echoing a user's own items back as shared context.
func (s *Store) CrossThreadMeetings(ctx context.Context, sharedThread, excludeThread ThreadID, limit int) ([]Meeting, error) {
	if sharedThread == "" {
		return nil, newStoreError(opCrossThreadMeetings, "missing_thread", errMissingThread)
	}
	if limit <= 0 {
		return []Meeting{}, nil
	}

	query := s.db.WithContext(ctx).
		Where("thread_id = ?", sharedThread.String())
	if excludeThread != "" {
		query = query.Where(`tldr NOT LIKE ? ESCAPE '\'`, likeEscaper.Replace(excludeThread.Tag())+"%")
	}

	var meetings []Meeting
	err := query.
		Order("created_at_s DESC, id DESC").
		Limit(limit).
		Find(&meetings).Error
	if err != nil {
		return nil, newStoreError(opCrossThreadMeetings, "query", err)
	}
	return meetings, nil
}

// ActionItemsForMeeting returns the action items owned by one meeting, in
// insertion order.
func (s *Store) ActionItemsForMeeting(ctx context.Context, meetingID uint64) ([]ActionItem, error) {
	var items []ActionItem
	err := s.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, newStoreError(opActionItems, "query", err)
	}
	return items, nil
}

// SetTaskExternalID attaches or clears the external task id on an action
// item. Exactly one external id is associated at a time; passing nil clears.
func (s *Store) SetTaskExternalID(ctx context.Context, actionItemID uint64, externalID *string) error {
	result := s.db.WithContext(ctx).
		Model(&ActionItem{}).
		Where("id = ?", actionItemID).
		Update("external_task_id", externalID)
	if result.Error != nil {
		return newStoreError(opSetTaskExternalID, "update", result.Error)
	}
	if result.RowsAffected == 0 {
		return newStoreError(opSetTaskExternalID, "not_found", gorm.ErrRecordNotFound)
	}
	return nil
}

// ClearExternalTaskIDs clears the external task id column on every action
// item referencing one of the given identifiers. Called during pre-clean so
// rows never point at deleted external resources.
func (s *Store) ClearExternalTaskIDs(ctx context.Context, externalIDs []string) error {
	if len(externalIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Model(&ActionItem{}).
		Where("external_task_id IN ?", externalIDs).
		Update("external_task_id", nil).Error
	if err != nil {
		return newStoreError(opClearTaskExternal, "update", err)
	}
	return nil
}

// AppendCalendarMirror records a calendar event created externally.
func (s *Store) AppendCalendarMirror(
	ctx context.Context,
	meetingID uint64,
	externalEventID string,
	title string,
	start UnixTimestamp,
) (uint64, error) {
	mirror := CalendarMirror{
		MeetingID:        meetingID,
		ExternalEventID:  externalEventID,
		Title:            title,
		StartTimeSeconds: start.Int64(),
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&mirror).Error; err != nil {
		return 0, newStoreError(opAppendMirror, "insert", err)
	}
	return mirror.ID, nil
}

// DeleteCalendarMirrors removes the mirror rows for the given external event
// identifiers. Called during pre-clean after the external events are deleted.
func (s *Store) DeleteCalendarMirrors(ctx context.Context, externalIDs []string) error {
	if len(externalIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("external_event_id IN ?", externalIDs).
		Delete(&CalendarMirror{}).Error
	if err != nil {
		return newStoreError(opDeleteMirrors, "delete", err)
	}
	return nil
}

// PurgeMeeting removes a meeting together with its action items, decisions
// and calendar mirrors. Children never outlive their parent.
func (s *Store) PurgeMeeting(ctx context.Context, meetingID uint64) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meeting_id = ?", meetingID).Delete(&ActionItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("meeting_id = ?", meetingID).Delete(&Decision{}).Error; err != nil {
			return err
		}
		if err := tx.Where("meeting_id = ?", meetingID).Delete(&CalendarMirror{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", meetingID).Delete(&Meeting{}).Error
	})
	if txErr != nil {
		return newStoreError(opPurgeMeeting, "delete", txErr)
	}
	return nil
}
