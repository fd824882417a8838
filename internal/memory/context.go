package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NoContextSentinel is returned verbatim when a thread has no prior history.
// The exact wording is a string contract: stored artifacts and operator
// tooling grep for it, so it must not drift. Callers making control-flow
// decisions should branch on Context.HasHistory instead of matching this
// string.
const NoContextSentinel = "No previous meeting context available."

const (
	headerMeetings    = "PREVIOUS MEETINGS:"
	headerActionItems = "OPEN ACTION ITEMS:"
	headerShared      = "SHARED CONTEXT FROM OTHER THREADS:"
)

// Context is the bounded prior-knowledge block handed to the summarizer.
type Context struct {
	Text       string
	HasHistory bool
}

// AssemblerConfig describes the dependencies and limits of the assembler.
type AssemblerConfig struct {
	Store *Store
	// SharedThread enables the cross-thread section when non-empty.
	SharedThread    ThreadID
	MeetingLimit    int
	ActionItemLimit int
	SharedLimit     int
}

// Assembler reads the record store and produces a bounded textual context for
// the downstream summarizer. It never mutates the store.
type Assembler struct {
	store           *Store
	sharedThread    ThreadID
	meetingLimit    int
	actionItemLimit int
	sharedLimit     int
}

// NewAssembler constructs an Assembler. Non-positive limits fall back to the
// defaults (3 meetings, 5 action items, 5 shared rows).
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.Store == nil {
		return nil, newStoreError("memory.assembler.new", "missing_store", errMissingDatabase)
	}

	meetingLimit := cfg.MeetingLimit
	if meetingLimit <= 0 {
		meetingLimit = 3
	}
	actionItemLimit := cfg.ActionItemLimit
	if actionItemLimit <= 0 {
		actionItemLimit = 5
	}
	sharedLimit := cfg.SharedLimit
	if sharedLimit <= 0 {
		sharedLimit = 5
	}

	return &Assembler{
		store:           cfg.Store,
		sharedThread:    cfg.SharedThread,
		meetingLimit:    meetingLimit,
		actionItemLimit: actionItemLimit,
		sharedLimit:     sharedLimit,
	}, nil
}

// Build assembles the prior-context block for a thread. When the thread has
// no history at all, Text carries NoContextSentinel and HasHistory is false.
func (a *Assembler) Build(ctx context.Context, thread ThreadID) (Context, error) {
	meetings, err := a.store.RecentMeetings(ctx, thread, a.meetingLimit)
	if err != nil {
		return Context{}, err
	}

	items, err := a.store.RecentActionItems(ctx, thread, a.actionItemLimit)
	if err != nil {
		return Context{}, err
	}

	var shared []Meeting
	if a.sharedThread != "" && a.sharedThread != thread {
		shared, err = a.store.CrossThreadMeetings(ctx, a.sharedThread, thread, a.sharedLimit)
		if err != nil {
			return Context{}, err
		}
	}

	if len(meetings) == 0 && len(items) == 0 && len(shared) == 0 {
		return Context{Text: NoContextSentinel, HasHistory: false}, nil
	}

	var sections []string
	if len(meetings) > 0 {
		lines := []string{headerMeetings}
		for _, meeting := range meetings {
			date := time.Unix(meeting.CreatedAtSeconds, 0).UTC().Format("2006-01-02")
			lines = append(lines, fmt.Sprintf("(%s) %s", date, meeting.TLDR))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if len(items) > 0 {
		lines := []string{headerActionItems}
		for _, item := range items {
			lines = append(lines, renderActionItem(item))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if len(shared) > 0 {
		lines := []string{headerShared}
		for _, meeting := range shared {
			lines = append(lines, meeting.TLDR)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return Context{Text: strings.Join(sections, "\n\n"), HasHistory: true}, nil
}

func renderActionItem(item ActionItem) string {
	owner := item.Owner
	if strings.TrimSpace(owner) == "" {
		owner = "unassigned"
	}
	if item.DueDate != nil && strings.TrimSpace(*item.DueDate) != "" {
		return fmt.Sprintf("- %s (%s, due %s)", item.Task, owner, *item.DueDate)
	}
	return fmt.Sprintf("- %s (%s)", item.Task, owner)
}
