package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scribelabs/minuted/internal/memory"
	"github.com/scribelabs/minuted/internal/schedule"
	"github.com/scribelabs/minuted/internal/summary"
)

const defaultFollowupDurationMinutes = 30

// dueDateLayouts are the accepted shapes for an action item due date. A due
// date that matches none of them is left off the external task.
var dueDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

var (
	errMissingStore     = errors.New("store must not be nil")
	errMissingClient    = errors.New("scheduling client must not be nil")
	errMissingAllocator = errors.New("allocator must not be nil")
	errMissingState     = errors.New("state file must not be nil")
)

// Outcome is the per-item result of one reconciliation pass.
type Outcome string

const (
	OutcomeCreated            Outcome = "created"
	OutcomeDeleted            Outcome = "deleted"
	OutcomeSkippedAlreadyGone Outcome = "skipped-already-gone"
	OutcomeSkippedError       Outcome = "skipped-error"
)

// ItemReport records what happened to one external resource during a pass.
type ItemReport struct {
	Kind       string // "task" or "event"
	Label      string
	ExternalID string
	Outcome    Outcome
	Err        error
}

// Report aggregates the per-item outcomes of one pass.
type Report struct {
	Items              []ItemReport
	Created            int
	Deleted            int
	SkippedAlreadyGone int
	SkippedError       int
}

func (r *Report) add(item ItemReport) {
	r.Items = append(r.Items, item)
	switch item.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeDeleted:
		r.Deleted++
	case OutcomeSkippedAlreadyGone:
		r.SkippedAlreadyGone++
	case OutcomeSkippedError:
		r.SkippedError++
	}
}

// BatchEntry pairs a stored meeting with its structured summary for sync.
type BatchEntry struct {
	MeetingID uint64
	Summary   summary.Summary
}

// ReconcilerConfig carries the collaborators of a Reconciler.
type ReconcilerConfig struct {
	Store                   *memory.Store
	Client                  schedule.Client
	Allocator               *schedule.Allocator
	State                   *StateFile
	Clock                   func() time.Time
	Logger                  *zap.Logger
	FollowupDurationMinutes int
	CreateFollowups         bool
}

// Reconciler drives the external scheduling service toward the state implied
// by stored summaries. PreClean tears down the previous generation recorded
// in SyncState; Sync appends one meeting's tasks and events to the current
// generation; Run composes both over a whole batch, so re-running with
// unchanged input converges on the same external state. Passes are serialized:
// SyncState is a single-writer file.
type Reconciler struct {
	store            *memory.Store
	client           schedule.Client
	allocator        *schedule.Allocator
	state            *StateFile
	clock            func() time.Time
	logger           *zap.Logger
	followupDuration int
	createFollowups  bool

	mu sync.Mutex
}

// NewReconciler validates the configuration and returns a Reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	if cfg.Allocator == nil {
		return nil, errMissingAllocator
	}
	if cfg.State == nil {
		return nil, errMissingState
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	duration := cfg.FollowupDurationMinutes
	if duration <= 0 {
		duration = defaultFollowupDurationMinutes
	}
	return &Reconciler{
		store:            cfg.Store,
		client:           cfg.Client,
		allocator:        cfg.Allocator,
		state:            cfg.State,
		clock:            clock,
		logger:           logger,
		followupDuration: duration,
		createFollowups:  cfg.CreateFollowups,
	}, nil
}

// Run executes one full reconciliation pass: pre-clean the previous
// generation, then recreate tasks and events for the whole batch. Deletes are
// fully ordered before creates; a failed external call skips only the
// affected item; a store or state-file failure aborts the pass. Row updates
// land before the state file so a crash can leave an orphaned external
// resource, never a dangling local reference.
func (r *Reconciler) Run(ctx context.Context, batch []BatchEntry) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report Report
	if err := r.preCleanPass(ctx, &report); err != nil {
		return report, err
	}

	next := SyncState{TaskIDs: []string{}, EventIDs: []string{}}
	for _, entry := range batch {
		if err := r.createTasks(ctx, entry, &next, &report); err != nil {
			return report, err
		}
		if err := r.createEvents(ctx, entry, &next, &report); err != nil {
			return report, err
		}
	}

	if err := r.state.Save(next); err != nil {
		return report, err
	}

	r.logReport(report)
	return report, nil
}

// PreClean tears down every external resource recorded in SyncState and
// clears the matching local references. Called once at the start of a batch
// run; the per-meeting Sync calls that follow only append.
func (r *Reconciler) PreClean(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report Report
	if err := r.preCleanPass(ctx, &report); err != nil {
		return report, err
	}
	r.logReport(report)
	return report, nil
}

// Sync appends one meeting's tasks and events to the current generation
// without touching resources created by earlier meetings in the same run.
func (r *Reconciler) Sync(ctx context.Context, entry BatchEntry) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report Report
	prior, err := r.state.Load()
	if err != nil {
		return report, err
	}

	if err := r.createTasks(ctx, entry, &prior, &report); err != nil {
		return report, err
	}
	if err := r.createEvents(ctx, entry, &prior, &report); err != nil {
		return report, err
	}

	if err := r.state.Save(prior); err != nil {
		return report, err
	}

	r.logReport(report)
	return report, nil
}

// preCleanPass deletes the prior generation, clears local references for all
// of its ids regardless of remote outcome, and commits the empty state.
// Callers hold r.mu.
func (r *Reconciler) preCleanPass(ctx context.Context, report *Report) error {
	prior, err := r.state.Load()
	if err != nil {
		return err
	}

	r.preClean(ctx, prior, report)
	if err := r.store.ClearExternalTaskIDs(ctx, prior.TaskIDs); err != nil {
		return err
	}
	if err := r.store.DeleteCalendarMirrors(ctx, prior.EventIDs); err != nil {
		return err
	}
	return r.state.Save(SyncState{})
}

func (r *Reconciler) logReport(report Report) {
	r.logger.Info("sync pass complete",
		zap.Int("created", report.Created),
		zap.Int("deleted", report.Deleted),
		zap.Int("skipped_already_gone", report.SkippedAlreadyGone),
		zap.Int("skipped_error", report.SkippedError))
}

// preClean deletes every external resource recorded in the prior state. A
// resource that is already gone counts as success.
func (r *Reconciler) preClean(ctx context.Context, prior SyncState, report *Report) {
	for _, id := range prior.TaskIDs {
		r.deleteOne(ctx, report, "task", id, r.client.DeleteTask)
	}
	for _, id := range prior.EventIDs {
		r.deleteOne(ctx, report, "event", id, r.client.DeleteEvent)
	}
}

func (r *Reconciler) deleteOne(
	ctx context.Context,
	report *Report,
	kind string,
	id string,
	remove func(context.Context, string) error,
) {
	err := remove(ctx, id)
	switch {
	case err == nil:
		report.add(ItemReport{Kind: kind, ExternalID: id, Outcome: OutcomeDeleted})
	case schedule.IsAlreadyGone(err):
		report.add(ItemReport{Kind: kind, ExternalID: id, Outcome: OutcomeSkippedAlreadyGone})
	default:
		r.logger.Warn("pre-clean delete failed",
			zap.String("kind", kind),
			zap.String("external_id", id),
			zap.Error(err))
		report.add(ItemReport{Kind: kind, ExternalID: id, Outcome: OutcomeSkippedError, Err: err})
	}
}

func (r *Reconciler) createTasks(
	ctx context.Context,
	entry BatchEntry,
	next *SyncState,
	report *Report,
) error {
	items, err := r.store.ActionItemsForMeeting(ctx, entry.MeetingID)
	if err != nil {
		return err
	}
	for _, item := range items {
		id, createErr := r.client.CreateTask(ctx, item.Task, taskNotes(item, entry.Summary.TLDR), parseDueDate(item.DueDate))
		if createErr != nil {
			r.logger.Warn("task create failed",
				zap.Uint64("action_item_id", item.ID),
				zap.Error(createErr))
			report.add(ItemReport{Kind: "task", Label: item.Task, Outcome: OutcomeSkippedError, Err: createErr})
			continue
		}
		externalID := id
		if err := r.store.SetTaskExternalID(ctx, item.ID, &externalID); err != nil {
			return err
		}
		next.TaskIDs = append(next.TaskIDs, id)
		report.add(ItemReport{Kind: "task", Label: item.Task, ExternalID: id, Outcome: OutcomeCreated})
	}
	return nil
}

func (r *Reconciler) createEvents(
	ctx context.Context,
	entry BatchEntry,
	next *SyncState,
	report *Report,
) error {
	requests := entry.Summary.MeetingsToSchedule
	if len(requests) == 0 && r.createFollowups && len(entry.Summary.ActionItems) > 0 {
		requests = []summary.MeetingRequest{r.followupRequest(entry.Summary)}
	}
	for _, request := range requests {
		duration := request.DurationMinutes
		if duration <= 0 {
			duration = r.followupDuration
		}
		preferred := r.resolvePreferred(request)
		id, start, createErr := r.allocator.CreateEventSmart(
			ctx, request.Title, eventDescription(entry.Summary), preferred, duration)
		if createErr != nil {
			r.logger.Warn("event create failed",
				zap.String("title", request.Title),
				zap.Error(createErr))
			report.add(ItemReport{Kind: "event", Label: request.Title, Outcome: OutcomeSkippedError, Err: createErr})
			continue
		}
		timestamp, tsErr := memory.NewUnixTimestamp(start.Unix())
		if tsErr != nil {
			return tsErr
		}
		if _, err := r.store.AppendCalendarMirror(ctx, entry.MeetingID, id, request.Title, timestamp); err != nil {
			return err
		}
		next.EventIDs = append(next.EventIDs, id)
		report.add(ItemReport{Kind: "event", Label: request.Title, ExternalID: id, Outcome: OutcomeCreated})
	}
	return nil
}

// followupRequest proposes a generic follow-up one week out when the summary
// has open action items but no explicit meeting requests.
func (r *Reconciler) followupRequest(s summary.Summary) summary.MeetingRequest {
	preferred := r.clock().UTC().AddDate(0, 0, 7)
	title := "Follow-up: " + truncateTitle(s.TLDR, 50)
	return summary.MeetingRequest{
		Title:           title,
		Date:            preferred.Format("2006-01-02"),
		Time:            preferred.Format("15:04"),
		DurationMinutes: r.followupDuration,
	}
}

// resolvePreferred turns the request's date/time strings into a preferred
// start. Missing or unparseable parts fall back to one week out at 09:00.
func (r *Reconciler) resolvePreferred(request summary.MeetingRequest) time.Time {
	fallback := r.clock().UTC().AddDate(0, 0, 7)
	day := fallback
	if request.Date != "" {
		if parsed, err := time.Parse("2006-01-02", request.Date); err == nil {
			day = parsed
		}
	}
	hour, minute := 9, 0
	if request.Time != "" {
		if parsed, err := time.Parse("15:04", request.Time); err == nil {
			hour, minute = parsed.Hour(), parsed.Minute()
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
}

func parseDueDate(value *string) *time.Time {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	for _, layout := range dueDateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			due := parsed.UTC()
			return &due
		}
	}
	return nil
}

func taskNotes(item memory.ActionItem, tldr string) string {
	var builder strings.Builder
	if item.Owner != "" {
		fmt.Fprintf(&builder, "Owner: %s\n", item.Owner)
	}
	fmt.Fprintf(&builder, "From meeting: %s", tldr)
	return builder.String()
}

func eventDescription(s summary.Summary) string {
	if len(s.ActionItems) == 0 {
		return s.TLDR
	}
	var builder strings.Builder
	builder.WriteString(s.TLDR)
	builder.WriteString("\n\nOpen items:\n")
	for _, item := range s.ActionItems {
		fmt.Fprintf(&builder, "- %s\n", item.Task)
	}
	return strings.TrimRight(builder.String(), "\n")
}

func truncateTitle(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
