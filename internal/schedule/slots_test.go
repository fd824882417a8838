package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fakeClient serves canned busy intervals keyed by day and records created
// events.
type fakeClient struct {
	busyByDay map[string][]Busy
	created   []Event
	nextID    int
	listCalls int
}

func (f *fakeClient) CreateTask(_ context.Context, _, _ string, _ *time.Time) (string, error) {
	return "", nil
}

func (f *fakeClient) DeleteTask(_ context.Context, _ string) error {
	return nil
}

func (f *fakeClient) CreateEvent(_ context.Context, event Event) (string, error) {
	f.created = append(f.created, event)
	f.nextID++
	return fmt.Sprintf("event-%d", f.nextID), nil
}

func (f *fakeClient) DeleteEvent(_ context.Context, _ string) error {
	return nil
}

func (f *fakeClient) ListEventsOnDay(_ context.Context, day time.Time) ([]Busy, error) {
	f.listCalls++
	return f.busyByDay[day.Format("2006-01-02")], nil
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad day fixture: %v", err)
	}
	return parsed
}

func at(t *testing.T, dayValue, clockValue string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", dayValue+" "+clockValue)
	if err != nil {
		t.Fatalf("bad time fixture: %v", err)
	}
	return parsed
}

func newTestAllocator(t *testing.T, client Client) *Allocator {
	t.Helper()
	allocator, err := NewAllocator(AllocatorConfig{Client: client})
	if err != nil {
		t.Fatalf("unexpected allocator error: %v", err)
	}
	return allocator
}

func fullyBooked(t *testing.T, dayValue string) []Busy {
	t.Helper()
	return []Busy{{Start: at(t, dayValue, "09:00"), End: at(t, dayValue, "18:00")}}
}

func TestFindSlotPrefersFirstFreeCandidate(t *testing.T) {
	client := &fakeClient{busyByDay: map[string][]Busy{
		"2026-09-01": {
			{Start: at(t, "2026-09-01", "09:00"), End: at(t, "2026-09-01", "10:00")},
		},
	}}
	allocator := newTestAllocator(t, client)

	slot, err := allocator.FindSlot(context.Background(), day(t, "2026-09-01"), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot == nil {
		t.Fatalf("expected a slot")
	}
	if !slot.Equal(at(t, "2026-09-01", "10:00")) {
		t.Fatalf("expected 10:00, got %v", slot)
	}
}

func TestFindSlotReturnsNilWhenDayFullyBooked(t *testing.T) {
	client := &fakeClient{busyByDay: map[string][]Busy{
		"2026-09-01": fullyBooked(t, "2026-09-01"),
	}}
	allocator := newTestAllocator(t, client)

	slot, err := allocator.FindSlot(context.Background(), day(t, "2026-09-01"), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot != nil {
		t.Fatalf("expected no slot on a fully booked day, got %v", slot)
	}
}

func TestFindSlotIgnoresUnsortedBusyInput(t *testing.T) {
	client := &fakeClient{busyByDay: map[string][]Busy{
		"2026-09-01": {
			{Start: at(t, "2026-09-01", "11:00"), End: at(t, "2026-09-01", "12:00")},
			{Start: at(t, "2026-09-01", "09:00"), End: at(t, "2026-09-01", "11:00")},
		},
	}}
	allocator := newTestAllocator(t, client)

	slot, err := allocator.FindSlot(context.Background(), day(t, "2026-09-01"), 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot == nil || !slot.Equal(at(t, "2026-09-01", "12:00")) {
		t.Fatalf("expected 12:00, got %v", slot)
	}
}

func TestCreateEventSmartUsesFreePreferredSlot(t *testing.T) {
	client := &fakeClient{busyByDay: map[string][]Busy{}}
	allocator := newTestAllocator(t, client)
	preferred := at(t, "2026-09-01", "10:30")

	_, start, err := allocator.CreateEventSmart(context.Background(), "Follow-up", "", preferred, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !start.Equal(preferred) {
		t.Fatalf("expected preferred slot, got %v", start)
	}
	if len(client.created) != 1 {
		t.Fatalf("expected one created event, got %d", len(client.created))
	}
}

func TestCreateEventSmartAvoidsBusyInterval(t *testing.T) {
	client := &fakeClient{busyByDay: map[string][]Busy{
		"2026-09-01": {
			{Start: at(t, "2026-09-01", "10:00"), End: at(t, "2026-09-01", "11:00")},
		},
	}}
	allocator := newTestAllocator(t, client)
	preferred := at(t, "2026-09-01", "10:30")

	_, start, err := allocator.CreateEventSmart(context.Background(), "Follow-up", "", preferred, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	busyStart := at(t, "2026-09-01", "10:00")
	busyEnd := at(t, "2026-09-01", "11:00")
	if start.Before(busyEnd) && start.Add(30*time.Minute).After(busyStart) {
		t.Fatalf("selected slot %v overlaps the busy interval", start)
	}
	if len(client.created) != 1 {
		t.Fatalf("expected one created event, got %d", len(client.created))
	}
}

func TestCreateEventSmartFallsBackToNextDay(t *testing.T) {
	client := &fakeClient{busyByDay: map[string][]Busy{
		"2026-09-01": fullyBooked(t, "2026-09-01"),
	}}
	allocator := newTestAllocator(t, client)
	preferred := at(t, "2026-09-01", "10:30")

	_, start, err := allocator.CreateEventSmart(context.Background(), "Follow-up", "", preferred, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Format("2006-01-02") != "2026-09-02" {
		t.Fatalf("expected slot on the next day, got %v", start)
	}
	if !start.Equal(at(t, "2026-09-02", "09:00")) {
		t.Fatalf("expected 09:00 next day, got %v", start)
	}
}

func TestCreateEventSmartAbandonsAfterTwoDays(t *testing.T) {
	client := &fakeClient{busyByDay: map[string][]Busy{
		"2026-09-01": fullyBooked(t, "2026-09-01"),
		"2026-09-02": fullyBooked(t, "2026-09-02"),
	}}
	allocator := newTestAllocator(t, client)
	preferred := at(t, "2026-09-01", "10:30")

	_, _, err := allocator.CreateEventSmart(context.Background(), "Follow-up", "", preferred, 30)
	if err == nil {
		t.Fatalf("expected no-slot failure")
	}
	if KindOf(err) != KindNoSlot {
		t.Fatalf("expected KindNoSlot, got %v", KindOf(err))
	}
	if len(client.created) != 0 {
		t.Fatalf("no event should be created when scheduling is abandoned")
	}
	if client.listCalls != 2 {
		t.Fatalf("search must be bounded to two days, made %d queries", client.listCalls)
	}
}
