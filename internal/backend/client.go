// Package backend is the REST client for the scene generation service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/AaronLay10/SceneReel/internal/scene"
)

// SessionCookieName is the cookie carrying the login session.
const SessionCookieName = "session"

// Options configures a Client.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// SessionCookie seeds the jar with an existing login session.
	SessionCookie string
	// HTTPClient overrides the transport; its Jar is replaced.
	HTTPClient *http.Client
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	base     *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	requests metric.Int64Counter
}

// New creates a client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url: %q", opts.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if opts.SessionCookie != "" {
		jar.SetCookies(base, []*http.Cookie{{Name: SessionCookieName, Value: opts.SessionCookie, Path: "/"}})
	}

	hc := &http.Client{Timeout: opts.Timeout}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
	}
	hc.Jar = jar

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	requests, err := otel.Meter("scenereel/backend").Int64Counter(
		"scenereel.backend.requests",
		metric.WithDescription("Backend requests by operation and outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		base:     base,
		http:     hc,
		limiter:  rate.NewLimiter(limit, burst),
		requests: requests,
	}, nil
}

func (c *Client) endpoint(parts ...string) string {
	return c.base.JoinPath(parts...).String()
}

// do sends req and maps failures onto the error taxonomy. On success the
// caller owns resp.Body.
func (c *Client) do(ctx context.Context, op string, req *http.Request) (*http.Response, error) {
	resp, err := c.send(ctx, op, req)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrUnauthenticated):
		outcome = "unauthenticated"
	case err != nil:
		var ae *APIError
		if errors.As(err, &ae) {
			outcome = "api_error"
		} else {
			outcome = "transport_error"
		}
	}
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	return resp, err
}

func (c *Client) send(ctx context.Context, op string, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	req = req.WithContext(ctx)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrUnauthenticated
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
		return nil, &APIError{Op: op, Status: resp.StatusCode, Message: body.Error}
	}

	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.roundTripJSON(ctx, op, req, out)
}

func (c *Client) postJSON(ctx context.Context, op, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.roundTripJSON(ctx, op, req, out)
}

func (c *Client) roundTripJSON(ctx context.Context, op string, req *http.Request, out interface{}) error {
	resp, err := c.do(ctx, op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// CheckPayment asks whether a submission of wordCount characters must be paid for.
func (c *Client) CheckPayment(ctx context.Context, wordCount int) (PaymentCheck, error) {
	var out PaymentCheck
	in := map[string]int{"word_count": wordCount}
	err := c.postJSON(ctx, "check_payment", c.endpoint("api", "check_payment"), in, &out)
	return out, err
}

// CreateTask uploads the content and returns the new task id. It is the
// only non-idempotent call and is never retried here.
func (c *Client) CreateTask(ctx context.Context, cr CreateRequest) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := cr.Filename
	if filename == "" {
		filename = "novel.txt"
	}
	part, err := mw.CreateFormFile("novel", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(cr.Content); err != nil {
		return "", err
	}

	provider := cr.Provider
	if provider == "" {
		provider = "qiniu"
	}
	fields := [][2]string{
		{"api_key", cr.APIKey},
		{"api_provider", provider},
		{"enable_video", strconv.FormatBool(cr.EnableVideo)},
		{"use_storyboard", strconv.FormatBool(cr.UseStoryboard)},
	}
	if cr.CustomPrompt != "" {
		fields = append(fields, [2]string{"custom_prompt", cr.CustomPrompt})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint("api", "upload"), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := c.roundTripJSON(ctx, "upload", req, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", &APIError{Op: "upload", Status: http.StatusOK, Message: "response carried no task id"}
	}
	return out.TaskID, nil
}

// TaskStatus fetches the current status of a task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	var out TaskStatus
	if err := c.getJSON(ctx, "status", c.endpoint("api", "status", taskID), &out); err != nil {
		return TaskStatus{}, err
	}
	out.State = ParseTaskState(out.Raw)
	if out.Progress < 0 {
		out.Progress = 0
	}
	if out.Progress > 100 {
		out.Progress = 100
	}
	return out, nil
}

// Scenes fetches the scene list of a completed task or history session.
func (c *Client) Scenes(ctx context.Context, taskID string) (*scene.List, error) {
	var out scene.List
	if err := c.getJSON(ctx, "scenes", c.endpoint("api", "scenes", taskID), &out); err != nil {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

// History lists past uploads of the logged-in user.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var out struct {
		History []HistoryEntry `json:"history"`
	}
	if err := c.getJSON(ctx, "history", c.endpoint("api", "history"), &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// CurrentUser returns the logged-in user, or nil when there is none.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	if err := c.getJSON(ctx, "current_user", c.endpoint("api", "current_user"), &out); err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, nil
		}
		return nil, err
	}
	return out.User, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "logout", c.endpoint("api", "logout"), nil, nil)
}

// DownloadResult streams the rendered video of a task into w. The first
// bytes are sniffed and a non-video payload is rejected before anything
// is written.
func (c *Client) DownloadResult(ctx context.Context, taskID string, w io.Writer) (int64, error) {
	req, err := http.NewRequest(http.MethodGet, c.endpoint("api", "download", taskID), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.do(ctx, "download", req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, &TransportError{Op: "download", Err: err}
	}
	head = head[:n]
	if !filetype.IsVideo(head) {
		return 0, ErrNotVideo
	}

	written, err := w.Write(head)
	if err != nil {
		return int64(written), err
	}
	rest, err := io.Copy(w, resp.Body)
	total := int64(written) + rest
	if err != nil {
		return total, &TransportError{Op: "download", Err: err}
	}
	return total, nil
}
