package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Google Tasks wants date-only due dates at UTC midnight.
const dueDateLayout = "2006-01-02T00:00:00.000Z"

var (
	errMissingBaseURL = errors.New("scheduler base url is required")
	errAuthDisabled   = errors.New("scheduler auth expired, sync disabled for this run")
)

// Busy is one occupied interval on the external calendar.
type Busy struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Event describes a calendar event to create.
type Event struct {
	Title           string
	Description     string
	Start           time.Time
	DurationMinutes int
	Attendees       []string
}

// Client is the boundary to the external scheduling service. Deletes must be
// idempotent from the caller's perspective: a missing target is not an error
// at the call sites performing cleanup.
type Client interface {
	CreateTask(ctx context.Context, title, notes string, due *time.Time) (string, error)
	DeleteTask(ctx context.Context, id string) error
	CreateEvent(ctx context.Context, event Event) (string, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEventsOnDay(ctx context.Context, day time.Time) ([]Busy, error)
}

// tokenFile mirrors the persisted OAuth token layout.
type tokenFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenURI     string `json:"token_uri"`
}

// HTTPClientConfig describes the dependencies of the HTTP scheduling client.
type HTTPClientConfig struct {
	BaseURL string
	// Token is a static bearer token. When empty, TokenPath is consulted.
	Token     string
	TokenPath string
	HTTP      *http.Client
	Logger    *zap.Logger
}

// HTTPClient talks to the scheduling service over REST. Calls are blocking,
// fast-fail, and never retried except for a single replay after one token
// refresh on an authorization failure. A failed refresh disables the client
// for the remainder of the run. Safe for concurrent use: the mutex guards
// the token and the refresh bookkeeping.
type HTTPClient struct {
	baseURL   string
	tokenPath string
	http      *http.Client
	logger    *zap.Logger

	mu           sync.Mutex
	token        string
	refreshTried bool
	authFailed   bool
}

// NewHTTPClient constructs the client. The token file, when configured, is
// read lazily on first use.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, newError("client.new", KindTransient, errMissingBaseURL)
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		tokenPath: cfg.TokenPath,
		http:      httpClient,
		logger:    logger,
	}, nil
}

type createTaskPayload struct {
	Title string  `json:"title"`
	Notes string  `json:"notes"`
	Due   *string `json:"due,omitempty"`
}

type createEventPayload struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Start           string   `json:"start"`
	DurationMinutes int      `json:"duration_minutes"`
	Attendees       []string `json:"attendees,omitempty"`
}

type createdResource struct {
	ID string `json:"id"`
}

type eventListPayload struct {
	Events []Busy `json:"events"`
}

// CreateTask creates an external task and returns its identifier.
func (c *HTTPClient) CreateTask(ctx context.Context, title, notes string, due *time.Time) (string, error) {
	payload := createTaskPayload{Title: title, Notes: notes}
	if due != nil {
		formatted := due.UTC().Format(dueDateLayout)
		payload.Due = &formatted
	}

	var created createdResource
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", payload, &created, "create_task"); err != nil {
		return "", err
	}
	return created.ID, nil
}

// DeleteTask deletes an external task. A missing task maps to KindAlreadyGone.
func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/tasks/"+url.PathEscape(id), nil, nil, "delete_task")
}

// CreateEvent creates an external calendar event and returns its identifier.
func (c *HTTPClient) CreateEvent(ctx context.Context, event Event) (string, error) {
	payload := createEventPayload{
		Title:           event.Title,
		Description:     event.Description,
		Start:           event.Start.UTC().Format(time.RFC3339),
		DurationMinutes: event.DurationMinutes,
		Attendees:       event.Attendees,
	}

	var created createdResource
	if err := c.do(ctx, http.MethodPost, "/v1/events", payload, &created, "create_event"); err != nil {
		return "", err
	}
	return created.ID, nil
}

// DeleteEvent deletes an external calendar event.
func (c *HTTPClient) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/events/"+url.PathEscape(id), nil, nil, "delete_event")
}

// ListEventsOnDay returns the busy intervals for one calendar day.
func (c *HTTPClient) ListEventsOnDay(ctx context.Context, day time.Time) ([]Busy, error) {
	path := "/v1/events?day=" + day.UTC().Format("2006-01-02")

	var listed eventListPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &listed, "list_events"); err != nil {
		return nil, err
	}
	return listed.Events, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}, op string) error {
	if c.isAuthFailed() {
		return newError(op, KindAuthExpired, errAuthDisabled)
	}

	status, responseBody, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return newError(op, KindTransient, err)
	}

	if status == http.StatusUnauthorized {
		if refreshErr := c.refreshForReplay(ctx); refreshErr != nil {
			return newError(op, KindAuthExpired, refreshErr)
		}
		status, responseBody, err = c.roundTrip(ctx, method, path, body)
		if err != nil {
			return newError(op, KindTransient, err)
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		c.disableAuth()
		return newError(op, KindAuthExpired, fmt.Errorf("unauthorized after refresh"))
	case method == http.MethodDelete && (status == http.StatusNotFound || status == http.StatusGone):
		return newError(op, KindAlreadyGone, fmt.Errorf("status %d", status))
	case status < 200 || status >= 300:
		return newError(op, KindTransient, fmt.Errorf("status %d: %s", status, truncate(responseBody, 200)))
	}

	if out != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return newError(op, KindTransient, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	token, err := c.bearerToken()
	if err != nil {
		return 0, nil, err
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return response.StatusCode, responseBody, nil
}

func (c *HTTPClient) isAuthFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authFailed
}

func (c *HTTPClient) disableAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authFailed = true
}

// refreshForReplay performs at most one token refresh per run and reports
// whether the caller may replay. Concurrent callers serialize here: the
// first performs the refresh, the rest replay with the refreshed token or
// inherit the disabled state.
func (c *HTTPClient) refreshForReplay(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshTried {
		if c.authFailed {
			return errAuthDisabled
		}
		return nil
	}
	c.refreshTried = true
	if err := c.refreshToken(ctx); err != nil {
		c.authFailed = true
		c.logger.Warn("scheduler token refresh failed, disabling sync", zap.Error(err))
		return err
	}
	return nil
}

func (c *HTTPClient) bearerToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}
	if c.tokenPath == "" {
		return "", nil
	}

	stored, err := c.readTokenFile()
	if err != nil {
		return "", err
	}
	c.token = stored.AccessToken
	return c.token, nil
}

func (c *HTTPClient) readTokenFile() (tokenFile, error) {
	raw, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return tokenFile{}, err
	}
	var stored tokenFile
	if err := json.Unmarshal(raw, &stored); err != nil {
		return tokenFile{}, fmt.Errorf("parse token file %s: %w", c.tokenPath, err)
	}
	return stored, nil
}

// refreshToken exchanges the stored refresh token for a new access token and
// rewrites the token file. Attempted once per run; callers hold c.mu.
func (c *HTTPClient) refreshToken(ctx context.Context) error {
	if c.tokenPath == "" {
		return fmt.Errorf("no token file configured")
	}

	stored, err := c.readTokenFile()
	if err != nil {
		return err
	}
	if stored.RefreshToken == "" || stored.TokenURI == "" {
		return fmt.Errorf("token file lacks refresh credentials")
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": stored.RefreshToken})
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, stored.TokenURI, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("token endpoint status %d", response.StatusCode)
	}

	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(response.Body).Decode(&refreshed); err != nil {
		return err
	}
	if refreshed.AccessToken == "" {
		return fmt.Errorf("token endpoint returned empty access token")
	}

	c.token = refreshed.AccessToken
	stored.AccessToken = refreshed.AccessToken
	updated, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return os.WriteFile(c.tokenPath, updated, 0o600)
}

func truncate(raw []byte, limit int) string {
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
