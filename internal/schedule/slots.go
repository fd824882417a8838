package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

var errMissingClient = errors.New("scheduling client is required")

// AllocatorConfig describes the slot search window.
type AllocatorConfig struct {
	Client             Client
	StartHour          int
	EndHour            int
	GranularityMinutes int
	Logger             *zap.Logger
}

// Allocator finds non-conflicting start times on the external calendar. It is
// a greedy single-pass conflict avoider, not a scheduler: the first free
// candidate wins.
type Allocator struct {
	client      Client
	startHour   int
	endHour     int
	granularity time.Duration
	logger      *zap.Logger
}

// NewAllocator constructs an Allocator. Zero window values fall back to the
// 9:00-18:00 workday at 30 minute granularity.
func NewAllocator(cfg AllocatorConfig) (*Allocator, error) {
	if cfg.Client == nil {
		return nil, newError("allocator.new", KindTransient, errMissingClient)
	}

	startHour := cfg.StartHour
	endHour := cfg.EndHour
	if startHour == 0 && endHour == 0 {
		startHour, endHour = 9, 18
	}
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return nil, newError("allocator.new", KindTransient,
			fmt.Errorf("invalid search window %d:00-%d:00", startHour, endHour))
	}
	granularityMinutes := cfg.GranularityMinutes
	if granularityMinutes <= 0 {
		granularityMinutes = 30
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Allocator{
		client:      cfg.Client,
		startHour:   startHour,
		endHour:     endHour,
		granularity: time.Duration(granularityMinutes) * time.Minute,
		logger:      logger,
	}, nil
}

// FindSlot returns the first start time on day whose [start, start+duration)
// interval overlaps no existing event, or nil when the day is fully booked.
// One external query per call.
func (a *Allocator) FindSlot(ctx context.Context, day time.Time, durationMinutes int) (*time.Time, error) {
	busy, err := a.client.ListEventsOnDay(ctx, day)
	if err != nil {
		return nil, err
	}
	return a.findCandidate(busy, day, durationMinutes), nil
}

// CreateEventSmart creates an event at the preferred time when it is free,
// otherwise at the first free slot on the same day, otherwise on the next
// day. The search is bounded to those two days; beyond them scheduling is
// abandoned with a KindNoSlot failure and no event is created.
func (a *Allocator) CreateEventSmart(
	ctx context.Context,
	title string,
	description string,
	preferred time.Time,
	durationMinutes int,
) (string, time.Time, error) {
	duration := time.Duration(durationMinutes) * time.Minute

	busy, err := a.client.ListEventsOnDay(ctx, preferred)
	if err != nil {
		return "", time.Time{}, err
	}

	start := preferred
	if overlapsAny(busy, preferred, preferred.Add(duration)) {
		candidate := a.findCandidate(busy, preferred, durationMinutes)
		if candidate == nil {
			nextDay := preferred.AddDate(0, 0, 1)
			candidate, err = a.FindSlot(ctx, nextDay, durationMinutes)
			if err != nil {
				return "", time.Time{}, err
			}
		}
		if candidate == nil {
			return "", time.Time{}, newError("create_event_smart", KindNoSlot,
				fmt.Errorf("no free slot on %s or the day after", preferred.Format("2006-01-02")))
		}
		a.logger.Debug("preferred slot conflicts, relocating event",
			zap.Time("preferred", preferred),
			zap.Time("selected", *candidate))
		start = *candidate
	}

	id, err := a.client.CreateEvent(ctx, Event{
		Title:           title,
		Description:     description,
		Start:           start,
		DurationMinutes: durationMinutes,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return id, start, nil
}

// findCandidate scans granularity-aligned start times within the workday
// window and returns the first that fits, or nil.
func (a *Allocator) findCandidate(busy []Busy, day time.Time, durationMinutes int) *time.Time {
	intervals := make([]Busy, len(busy))
	copy(intervals, busy)
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})

	duration := time.Duration(durationMinutes) * time.Minute
	windowStart := time.Date(day.Year(), day.Month(), day.Day(), a.startHour, 0, 0, 0, day.Location())
	windowEnd := time.Date(day.Year(), day.Month(), day.Day(), a.endHour, 0, 0, 0, day.Location())

	for candidate := windowStart; !candidate.Add(duration).After(windowEnd); candidate = candidate.Add(a.granularity) {
		if !overlapsAny(intervals, candidate, candidate.Add(duration)) {
			selected := candidate
			return &selected
		}
	}
	return nil
}

// overlapsAny applies the half-open interval test: [start, end) conflicts
// with a busy interval when start < busyEnd && end > busyStart.
func overlapsAny(busy []Busy, start, end time.Time) bool {
	for _, interval := range busy {
		if start.Before(interval.End) && end.After(interval.Start) {
			return true
		}
	}
	return false
}
