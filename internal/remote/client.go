// Package remote implements workout.Store against the LiftLog REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// UserHeader names the user on requests to a server running with the
// development identity. Servers behind Tailscale ignore it.
const UserHeader = "X-LiftLog-User"

const (
	DefaultRoutineTTL = 5 * time.Minute
	cleanupInterval   = 10 * time.Minute
)

// Client talks to the LiftLog server. Routines are cached read-through since
// they change rarely and are fetched on every load and start.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	routines   *gocache.Cache
	log        *slog.Logger
}

// Compile-time check: Client satisfies workout.Store.
var _ workout.Store = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client, e.g. with a tsnet one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTracer records one span per request.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithRoutineTTL sets how long fetched routines are reused.
func WithRoutineTTL(ttl time.Duration) Option {
	return func(c *Client) { c.routines = gocache.New(ttl, cleanupInterval) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a Client targeting the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tracer:     noop.NewTracerProvider().Tracer("remote"),
		routines:   gocache.New(DefaultRoutineTTL, cleanupInterval),
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StatusError is a non-success response the client has no sentinel for.
type StatusError struct {
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: %s returned %d: %s", e.Path, e.Status, e.Message)
}

// do sends one request. in is JSON-encoded when non-nil; out is decoded from
// a 200/201 body when non-nil. A 204 leaves out untouched and returns
// found=false.
func (c *Client) do(ctx context.Context, method, path string, userID int, in, out any) (found bool, err error) {
	ctx, span := c.tracer.Start(ctx, method+" "+routeName(path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
			attribute.Int("liftlog.user_id", userID),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return false, fmt.Errorf("remote: encode %s: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return false, fmt.Errorf("remote: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if userID > 0 {
		req.Header.Set(UserHeader, strconv.Itoa(userID))
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("remote: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return false, nil
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return false, fmt.Errorf("remote: decode %s: %w", path, err)
			}
		}
		return true, nil
	}

	msg := errorMessage(raw)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, fmt.Errorf("remote: %s: %s: %w", path, msg, workout.ErrNotFound)
	case http.StatusConflict:
		return false, fmt.Errorf("remote: %s: %s: %w", path, msg, workout.ErrSessionLive)
	}
	return false, &StatusError{Path: path, Status: resp.StatusCode, Message: msg}
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

// routeName strips ids from a path so span names stay low-cardinality.
func routeName(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func routineKey(userID int, id uuid.UUID) string {
	return strconv.Itoa(userID) + ":" + id.String()
}

// Me returns the user the server resolved for this client.
func (c *Client) Me(ctx context.Context, userID int) (*models.User, error) {
	var u models.User
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/me", userID, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListRoutines returns the user's routines.
func (c *Client) ListRoutines(ctx context.Context, userID int) ([]models.Routine, error) {
	var resp struct {
		Routines []models.Routine `json:"routines"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/routines", userID, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Routines {
		r := resp.Routines[i]
		c.routines.SetDefault(routineKey(userID, r.ID), &r)
	}
	return resp.Routines, nil
}

// CreateRoutine stores a new routine and fills in its id.
func (c *Client) CreateRoutine(ctx context.Context, userID int, r *models.Routine) error {
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/routines", userID, r, r); err != nil {
		return err
	}
	c.routines.SetDefault(routineKey(userID, r.ID), r)
	return nil
}

// GetRoutine returns a routine, from cache when fresh. A NotFound answer
// evicts any cached copy so a deleted routine is noticed.
func (c *Client) GetRoutine(ctx context.Context, userID int, routineID uuid.UUID) (*models.Routine, error) {
	key := routineKey(userID, routineID)
	if v, ok := c.routines.Get(key); ok {
		if r, ok := v.(*models.Routine); ok {
			return r, nil
		}
		c.log.Error("wrong type in routine cache", "key", key)
	}

	var r models.Routine
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/routines/"+routineID.String(), userID, nil, &r); err != nil {
		c.routines.Delete(key)
		return nil, err
	}
	c.routines.SetDefault(key, &r)
	return &r, nil
}

// InvalidateRoutine drops one cached routine.
func (c *Client) InvalidateRoutine(userID int, routineID uuid.UUID) {
	c.routines.Delete(routineKey(userID, routineID))
}

// CreateSession starts a session remotely and fills in the server's id.
func (c *Client) CreateSession(ctx context.Context, s *models.WorkoutSession) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/sessions", s.UserID, s, s)
	return err
}

// ActiveSession returns the live session, or nil when the server answers 204.
func (c *Client) ActiveSession(ctx context.Context, userID int) (*models.WorkoutSession, error) {
	var s models.WorkoutSession
	found, err := c.do(ctx, http.MethodGet, "/api/v1/sessions/active", userID, nil, &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

func (c *Client) UpdateSession(ctx context.Context, userID int, sessionID uuid.UUID, update models.SessionUpdate) error {
	_, err := c.do(ctx, http.MethodPatch, "/api/v1/sessions/"+sessionID.String(), userID, update, nil)
	return err
}

func (c *Client) RecentSessions(ctx context.Context, userID int, limit int) ([]models.WorkoutSession, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	var resp struct {
		Sessions []models.WorkoutSession `json:"sessions"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/sessions?"+params.Encode(), userID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) CreateSet(ctx context.Context, userID int, set *models.ExerciseSet) error {
	path := "/api/v1/sessions/" + set.SessionID.String() + "/sets"
	_, err := c.do(ctx, http.MethodPost, path, userID, set, set)
	return err
}

func (c *Client) UpdateSet(ctx context.Context, userID int, set *models.ExerciseSet) error {
	_, err := c.do(ctx, http.MethodPatch, "/api/v1/sets/"+set.ID.String(), userID, set, nil)
	return err
}

// DeleteRoutine removes a routine and drops it from the cache.
func (c *Client) DeleteRoutine(ctx context.Context, userID int, routineID uuid.UUID) error {
	c.routines.Delete(routineKey(userID, routineID))
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/routines/"+routineID.String(), userID, nil, nil)
	return err
}

func (c *Client) DeleteSet(ctx context.Context, userID int, setID uuid.UUID) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/sets/"+setID.String(), userID, nil, nil)
	return err
}

func (c *Client) ListSets(ctx context.Context, userID int, sessionID uuid.UUID) ([]models.ExerciseSet, error) {
	var resp struct {
		Sets []models.ExerciseSet `json:"sets"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID.String()+"/sets", userID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sets, nil
}

// QuerySessions returns every session started in [start, end).
func (c *Client) QuerySessions(ctx context.Context, start, end time.Time, userID int) ([]models.WorkoutSession, error) {
	var resp struct {
		Sessions []models.WorkoutSession `json:"sessions"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/sessions?"+timeParams(start, end).Encode(), userID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetTrainingSummary returns per-period totals over [start, end).
func (c *Client) GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]models.TrainingSummaryPeriod, error) {
	params := timeParams(start, end)
	params.Set("bucket", bucket)
	var resp struct {
		Periods []models.TrainingSummaryPeriod `json:"periods"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/summary?"+params.Encode(), userID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Periods, nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}
