package memory

import (
	"context"
	"testing"
	"time"
)

func TestAppendMeetingRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)
	thread := mustThreadID(t, "alice")

	items := []NewActionItem{
		{Task: "Create spec", Owner: "Bob", DueDate: strptr("Friday")},
		{Task: "Review budget", Owner: ""},
	}
	decisions := []NewDecision{
		{Decision: "Prioritize mobile", Owner: "Bob", Context: "User demand"},
	}

	meetingID, err := store.AppendMeeting(
		context.Background(), thread, mustTimestamp(t, 1756600000),
		"Q4 priorities set", `{"tldr":"Q4 priorities set"}`, items, decisions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meetingID == 0 {
		t.Fatalf("expected a meeting id")
	}

	stored, err := store.RecentActionItems(context.Background(), thread, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 action items, got %d", len(stored))
	}
	for _, item := range stored {
		if item.MeetingID != meetingID {
			t.Fatalf("action item not attached to meeting: %#v", item)
		}
		if item.ExternalTaskID != nil {
			t.Fatalf("external task id should start empty")
		}
	}
}

func TestRecentMeetingsScopedToThread(t *testing.T) {
	store, clock, _ := newTestStore(t)
	alice := mustThreadID(t, "alice")
	bob := mustThreadID(t, "bob")

	for _, fixture := range []struct {
		thread ThreadID
		tldr   string
	}{
		{alice, "Q4 priorities set"},
		{bob, "Standup"},
		{alice, "SSO rollout"},
	} {
		clock.Advance(time.Minute)
		_, err := store.AppendMeeting(
			context.Background(), fixture.thread, mustTimestamp(t, clock.Now().Unix()),
			fixture.tldr, "{}", nil, nil)
		if err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}

	meetings, err := store.RecentMeetings(context.Background(), alice, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meetings) != 2 {
		t.Fatalf("expected 2 meetings for alice, got %d", len(meetings))
	}
	for _, meeting := range meetings {
		if meeting.ThreadID != alice.String() {
			t.Fatalf("leaked meeting from thread %q", meeting.ThreadID)
		}
	}
	for i := 1; i < len(meetings); i++ {
		if meetings[i].CreatedAtSeconds > meetings[i-1].CreatedAtSeconds {
			t.Fatalf("meetings not ordered newest first")
		}
	}
}

func TestRecentMeetingsHonorsLimit(t *testing.T) {
	store, clock, _ := newTestStore(t)
	alice := mustThreadID(t, "alice")

	for _, tldr := range []string{"Q4 priorities set", "SSO rollout"} {
		clock.Advance(time.Minute)
		_, err := store.AppendMeeting(
			context.Background(), alice, mustTimestamp(t, clock.Now().Unix()),
			tldr, "{}", nil, nil)
		if err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}

	meetings, err := store.RecentMeetings(context.Background(), alice, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meetings) != 1 {
		t.Fatalf("expected exactly one meeting, got %d", len(meetings))
	}
	if meetings[0].TLDR != "SSO rollout" {
		t.Fatalf("expected newest meeting, got %q", meetings[0].TLDR)
	}
}

func TestRecentActionItemsNewestFirst(t *testing.T) {
	store, clock, _ := newTestStore(t)
	alice := mustThreadID(t, "alice")

	_, err := store.AppendMeeting(
		context.Background(), alice, mustTimestamp(t, clock.Now().Unix()),
		"first", "{}", []NewActionItem{{Task: "old task"}}, nil)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	clock.Advance(2 * time.Minute)
	_, err = store.AppendMeeting(
		context.Background(), alice, mustTimestamp(t, clock.Now().Unix()),
		"second", "{}", []NewActionItem{{Task: "new task"}}, nil)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	items, err := store.RecentActionItems(context.Background(), alice, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Task != "new task" {
		t.Fatalf("expected the newest action item, got %#v", items)
	}
}

func TestCrossThreadMeetingsExcludesOwnTag(t *testing.T) {
	store, clock, _ := newTestStore(t)
	shared := mustThreadID(t, "global")
	alice := mustThreadID(t, "alice")

	for _, tldr := range []string{
		alice.TagTLDR("Q4 priorities set"),
		"[bob] Standup notes",
		"[carol] Budget review",
	} {
		clock.Advance(time.Minute)
		_, err := store.AppendMeeting(
			context.Background(), shared, mustTimestamp(t, clock.Now().Unix()),
			tldr, "{}", nil, nil)
		if err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}

	meetings, err := store.CrossThreadMeetings(context.Background(), shared, alice, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meetings) != 2 {
		t.Fatalf("expected 2 cross-thread meetings, got %d", len(meetings))
	}
	for _, meeting := range meetings {
		if meeting.TLDR == alice.TagTLDR("Q4 priorities set") {
			t.Fatalf("cross-thread read returned alice's own row")
		}
	}
}

func TestCrossThreadMeetingsMatchesTagLiterally(t *testing.T) {
	store, clock, _ := newTestStore(t)
	shared := mustThreadID(t, "global")
	teamA := mustThreadID(t, "team_a")

	for _, tldr := range []string{
		teamA.TagTLDR("Kickoff held"),
		"[team-a] Retro notes",
		"[teamxa] Planning notes",
	} {
		clock.Advance(time.Minute)
		_, err := store.AppendMeeting(
			context.Background(), shared, mustTimestamp(t, clock.Now().Unix()),
			tldr, "{}", nil, nil)
		if err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}

	meetings, err := store.CrossThreadMeetings(context.Background(), shared, teamA, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meetings) != 2 {
		t.Fatalf("underscore in the tag must not act as a wildcard, got %d meetings", len(meetings))
	}
	for _, meeting := range meetings {
		if meeting.TLDR == teamA.TagTLDR("Kickoff held") {
			t.Fatalf("cross-thread read returned team_a's own row")
		}
	}
}

func TestSetTaskExternalIDAttachAndClear(t *testing.T) {
	store, _, _ := newTestStore(t)
	alice := mustThreadID(t, "alice")

	meetingID, err := store.AppendMeeting(
		context.Background(), alice, mustTimestamp(t, 1756600000),
		"sync test", "{}", []NewActionItem{{Task: "Create spec"}}, nil)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	items, err := store.ActionItemsForMeeting(context.Background(), meetingID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one action item, got %d", len(items))
	}

	external := "task-ext-1"
	if err := store.SetTaskExternalID(context.Background(), items[0].ID, &external); err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}

	items, err = store.ActionItemsForMeeting(context.Background(), meetingID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0].ExternalTaskID == nil || *items[0].ExternalTaskID != external {
		t.Fatalf("external id not attached: %#v", items[0])
	}

	if err := store.ClearExternalTaskIDs(context.Background(), []string{external}); err != nil {
		t.Fatalf("unexpected clear error: %v", err)
	}
	items, err = store.ActionItemsForMeeting(context.Background(), meetingID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0].ExternalTaskID != nil {
		t.Fatalf("external id should be cleared, got %q", *items[0].ExternalTaskID)
	}
}

func TestSetTaskExternalIDUnknownRow(t *testing.T) {
	store, _, _ := newTestStore(t)

	external := "task-ext-1"
	err := store.SetTaskExternalID(context.Background(), 9999, &external)
	if err == nil {
		t.Fatalf("expected error for unknown action item")
	}
}

func TestCalendarMirrorLifecycle(t *testing.T) {
	store, _, db := newTestStore(t)
	alice := mustThreadID(t, "alice")

	meetingID, err := store.AppendMeeting(
		context.Background(), alice, mustTimestamp(t, 1756600000),
		"mirror test", "{}", nil, nil)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	mirrorID, err := store.AppendCalendarMirror(
		context.Background(), meetingID, "event-ext-1", "Follow-up: mirror test",
		mustTimestamp(t, 1756700000))
	if err != nil {
		t.Fatalf("unexpected mirror error: %v", err)
	}
	if mirrorID == 0 {
		t.Fatalf("expected a mirror id")
	}

	if err := store.DeleteCalendarMirrors(context.Background(), []string{"event-ext-1"}); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	var count int64
	if err := db.Model(&CalendarMirror{}).Count(&count).Error; err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected mirrors deleted, found %d", count)
	}
}

func TestPurgeMeetingCascades(t *testing.T) {
	store, _, db := newTestStore(t)
	alice := mustThreadID(t, "alice")

	meetingID, err := store.AppendMeeting(
		context.Background(), alice, mustTimestamp(t, 1756600000),
		"purge test", "{}",
		[]NewActionItem{{Task: "Create spec"}},
		[]NewDecision{{Decision: "Prioritize mobile"}})
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if _, err := store.AppendCalendarMirror(
		context.Background(), meetingID, "event-ext-1", "Follow-up",
		mustTimestamp(t, 1756700000)); err != nil {
		t.Fatalf("unexpected mirror error: %v", err)
	}

	if err := store.PurgeMeeting(context.Background(), meetingID); err != nil {
		t.Fatalf("unexpected purge error: %v", err)
	}

	for _, model := range []interface{}{&Meeting{}, &ActionItem{}, &Decision{}, &CalendarMirror{}} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("unexpected count error: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected cascade delete for %T, found %d rows", model, count)
		}
	}
}
