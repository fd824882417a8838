package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scribelabs/minuted/internal/agent"
	"github.com/scribelabs/minuted/internal/memory"
)

const defaultRecentLimit = 10

var (
	errMissingProcessor = errors.New("transcript processor dependency required")
	errMissingStore     = errors.New("record store dependency required")
	errMissingThread    = errors.New("thread dependency required")
)

// TranscriptProcessor runs one transcript through the summarization pipeline.
type TranscriptProcessor interface {
	Process(ctx context.Context, transcript string) (agent.Result, error)
}

type Dependencies struct {
	Processor TranscriptProcessor
	Store     *memory.Store
	Thread    memory.ThreadID
	Logger    *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Processor == nil {
		return nil, errMissingProcessor
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Thread == "" {
		return nil, errMissingThread
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		processor: deps.Processor,
		store:     deps.Store,
		thread:    deps.Thread,
		logger:    logger,
	}

	router.GET("/health", handler.handleHealth)
	router.POST("/api/summarize", handler.handleSummarize)
	router.GET("/api/meetings/recent", handler.handleRecentMeetings)

	return router, nil
}

type httpHandler struct {
	processor TranscriptProcessor
	store     *memory.Store
	thread    memory.ThreadID
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"thread":    h.thread.String(),
	})
}

type summarizeRequestPayload struct {
	Transcript string `json:"transcript"`
}

type summarizeResponsePayload struct {
	RunID       string      `json:"run_id"`
	MeetingID   uint64      `json:"meeting_id"`
	Summary     interface{} `json:"summary"`
	UsedContext bool        `json:"used_context"`
	Synced      bool        `json:"synced"`
	LatencyMS   int64       `json:"latency_ms"`
}

func (h *httpHandler) handleSummarize(c *gin.Context) {
	var request summarizeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Transcript) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transcript field is required"})
		return
	}

	result, err := h.processor.Process(c.Request.Context(), request.Transcript)
	if err != nil {
		if errors.Is(err, agent.ErrSummarizerUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summarizer_unavailable"})
			return
		}
		h.logger.Error("transcript processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing_failed"})
		return
	}

	c.JSON(http.StatusOK, summarizeResponsePayload{
		RunID:       result.RunID,
		MeetingID:   result.MeetingID,
		Summary:     result.Summary,
		UsedContext: result.UsedContext,
		Synced:      result.Synced,
		LatencyMS:   result.LatencyMillis,
	})
}

type meetingPayload struct {
	ID               uint64 `json:"id"`
	TLDR             string `json:"tldr"`
	TimestampSeconds int64  `json:"timestamp_s"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

func (h *httpHandler) handleRecentMeetings(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	meetings, err := h.store.RecentMeetings(c.Request.Context(), h.thread, limit)
	if err != nil {
		h.logger.Error("recent meetings lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	payload := make([]meetingPayload, 0, len(meetings))
	for _, meeting := range meetings {
		payload = append(payload, meetingPayload{
			ID:               meeting.ID,
			TLDR:             meeting.TLDR,
			TimestampSeconds: meeting.TimestampSeconds,
			CreatedAtSeconds: meeting.CreatedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"meetings": payload})
}
