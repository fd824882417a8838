// Package agent orchestrates the summarization pipeline: assemble context,
// summarize, persist, publish to the shared thread, reconcile external
// scheduling state.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scribelabs/minuted/internal/memory"
	"github.com/scribelabs/minuted/internal/summarizer"
	"github.com/scribelabs/minuted/internal/summary"
	"github.com/scribelabs/minuted/internal/syncer"
)

var (
	// ErrSummarizerUnavailable marks a run attempted without a configured
	// summarizer. The capability is absent, not failing.
	ErrSummarizerUnavailable = errors.New("summarizer is not configured")
	// ErrSchedulerUnavailable marks a sync attempted without a configured
	// scheduling client.
	ErrSchedulerUnavailable = errors.New("scheduling client is not configured")

	errMissingStore     = errors.New("store must not be nil")
	errMissingAssembler = errors.New("assembler must not be nil")
	errMissingThread    = errors.New("thread must not be empty")
)

// IDProvider mints opaque string identifiers for pipeline runs.
type IDProvider interface {
	NewID() string
}

type uuidProvider struct{}

func (uuidProvider) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Metrics carries plain per-agent counters.
type Metrics struct {
	TotalRequests      int
	TotalLatencyMillis int64
}

// Result is the outcome of one processed transcript.
type Result struct {
	RunID         string
	MeetingID     uint64
	Summary       summary.Summary
	UsedContext   bool
	Synced        bool
	SyncReport    *syncer.Report
	LatencyMillis int64
}

// Config wires the agent's collaborators. Summarizer and Reconciler are
// optional: a nil Summarizer disables processing, a nil Reconciler disables
// sync while summarization continues.
type Config struct {
	Store        *memory.Store
	Assembler    *memory.Assembler
	Summarizer   summarizer.Summarizer
	Reconciler   *syncer.Reconciler
	Thread       memory.ThreadID
	SharedThread memory.ThreadID
	Clock        func() time.Time
	IDs          IDProvider
	Logger       *zap.Logger
}

// Agent runs the per-thread meeting pipeline.
type Agent struct {
	store        *memory.Store
	assembler    *memory.Assembler
	summarizer   summarizer.Summarizer
	reconciler   *syncer.Reconciler
	thread       memory.ThreadID
	sharedThread memory.ThreadID
	clock        func() time.Time
	ids          IDProvider
	logger       *zap.Logger

	mu      sync.Mutex
	metrics Metrics
}

// New validates the configuration and returns an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Assembler == nil {
		return nil, errMissingAssembler
	}
	if cfg.Thread == "" {
		return nil, errMissingThread
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDs
	if ids == nil {
		ids = uuidProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		store:        cfg.Store,
		assembler:    cfg.Assembler,
		summarizer:   cfg.Summarizer,
		reconciler:   cfg.Reconciler,
		thread:       cfg.Thread,
		sharedThread: cfg.SharedThread,
		clock:        clock,
		ids:          ids,
		logger:       logger,
	}, nil
}

// Process runs one transcript through the full pipeline. The meeting is
// persisted atomically before any external sync; a sync failure degrades the
// result instead of failing the run.
func (a *Agent) Process(ctx context.Context, transcript string) (Result, error) {
	if a.summarizer == nil {
		return Result{}, ErrSummarizerUnavailable
	}

	start := a.clock()
	runID := a.ids.NewID()

	assembled, err := a.assembler.Build(ctx, a.thread)
	if err != nil {
		return Result{}, err
	}

	parsed, err := a.summarizer.Summarize(ctx, transcript, assembled.Text, assembled.HasHistory)
	if err != nil {
		return Result{}, err
	}

	timestamp, err := memory.NewUnixTimestamp(a.clock().UTC().Unix())
	if err != nil {
		return Result{}, err
	}
	meetingID, err := a.store.AppendMeeting(
		ctx, a.thread, timestamp, parsed.TLDR, parsed.MustJSON(),
		newActionItems(parsed), newDecisions(parsed))
	if err != nil {
		return Result{}, err
	}

	a.publishShared(ctx, timestamp, parsed)

	synced := false
	var report *syncer.Report
	if a.reconciler != nil {
		// Append within the current generation: earlier meetings in the same
		// run keep their external tasks and events. Tear-down of the previous
		// generation happens once per run, not per meeting.
		passReport, syncErr := a.reconciler.Sync(ctx, syncer.BatchEntry{MeetingID: meetingID, Summary: parsed})
		if syncErr != nil {
			a.logger.Warn("sync pass failed",
				zap.String("run_id", runID),
				zap.Uint64("meeting_id", meetingID),
				zap.Error(syncErr))
		} else {
			synced = true
			report = &passReport
		}
	}

	latency := a.clock().Sub(start).Milliseconds()
	a.record(latency)

	a.logger.Info("transcript processed",
		zap.String("run_id", runID),
		zap.String("thread", a.thread.String()),
		zap.Uint64("meeting_id", meetingID),
		zap.Bool("used_context", assembled.HasHistory),
		zap.Bool("synced", synced),
		zap.Int64("latency_ms", latency))

	return Result{
		RunID:         runID,
		MeetingID:     meetingID,
		Summary:       parsed,
		UsedContext:   assembled.HasHistory,
		Synced:        synced,
		SyncReport:    report,
		LatencyMillis: latency,
	}, nil
}

// publishShared appends a tagged copy of the tl;dr to the shared thread so
// other threads can surface it as cross-thread context. Children stay on the
// originating thread only. Publication failure never fails the run.
func (a *Agent) publishShared(ctx context.Context, timestamp memory.UnixTimestamp, parsed summary.Summary) {
	if a.sharedThread == "" || a.sharedThread == a.thread {
		return
	}
	_, err := a.store.AppendMeeting(
		ctx, a.sharedThread, timestamp, a.thread.TagTLDR(parsed.TLDR), parsed.MustJSON(), nil, nil)
	if err != nil {
		a.logger.Warn("shared thread publication failed",
			zap.String("thread", a.thread.String()),
			zap.String("shared_thread", a.sharedThread.String()),
			zap.Error(err))
	}
}

// SyncRecent re-runs the reconciler over the most recent stored summaries
// without calling the summarizer. Meetings whose stored payload no longer
// parses are skipped.
func (a *Agent) SyncRecent(ctx context.Context, limit int) (syncer.Report, error) {
	if a.reconciler == nil {
		return syncer.Report{}, ErrSchedulerUnavailable
	}

	meetings, err := a.store.RecentMeetings(ctx, a.thread, limit)
	if err != nil {
		return syncer.Report{}, err
	}

	batch := make([]syncer.BatchEntry, 0, len(meetings))
	for _, meeting := range meetings {
		parsed, parseErr := summary.Parse(meeting.SummaryJSON)
		if parseErr != nil {
			a.logger.Warn("stored summary no longer parses, skipping",
				zap.Uint64("meeting_id", meeting.ID),
				zap.Error(parseErr))
			continue
		}
		batch = append(batch, syncer.BatchEntry{MeetingID: meeting.ID, Summary: parsed})
	}

	return a.reconciler.Run(ctx, batch)
}

// Metrics returns a snapshot of the agent's counters.
func (a *Agent) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

func (a *Agent) record(latencyMillis int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.TotalRequests++
	a.metrics.TotalLatencyMillis += latencyMillis
}

func newActionItems(parsed summary.Summary) []memory.NewActionItem {
	items := make([]memory.NewActionItem, 0, len(parsed.ActionItems))
	for _, item := range parsed.ActionItems {
		owner := ""
		if item.Owner != nil {
			owner = *item.Owner
		}
		items = append(items, memory.NewActionItem{Task: item.Task, Owner: owner, DueDate: item.DueDate})
	}
	return items
}

func newDecisions(parsed summary.Summary) []memory.NewDecision {
	decisions := make([]memory.NewDecision, 0, len(parsed.Decisions))
	for _, decision := range parsed.Decisions {
		owner := ""
		if decision.Owner != nil {
			owner = *decision.Owner
		}
		decisions = append(decisions, memory.NewDecision{
			Decision: decision.Decision,
			Owner:    owner,
			Context:  decision.Context,
		})
	}
	return decisions
}
