// Package gateway is the typed HTTP client for the video generation backend.
// It translates domain operations into REST calls, attaches the bearer
// credential when one is configured, enforces a per-request timeout, and maps
// non-2xx responses to *Error. Retry policy belongs to callers; the gateway
// itself never retries.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chronoreel/internal/logging"
	"chronoreel/internal/model"
)

const defaultRequestTimeout = 30 * time.Second

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *logrus.Logger

	// HTTPClient overrides the transport, primarily for tests.
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logrus.Entry
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid backend base URL %s: %w", base, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	hc.Timeout = timeout

	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		http:    hc,
		log:     log.WithField("component", "gateway"),
	}, nil
}

type CreateProjectRequest struct {
	Title     string `json:"title,omitempty"`
	EraPreset string `json:"era_preset"`
	Duration  int    `json:"duration"`
	Ratio     string `json:"ratio"`
}

type CreateVideoRequest struct {
	SelectedAssetIDs []int64 `json:"selected_asset_ids"`
	MusicID          *int64  `json:"music_id,omitempty"`
	OverlayText      string  `json:"overlay_text,omitempty"`
}

// Options fetches the configuration space for new projects. When the backend
// is unreachable or failing server-side, the static fallback set is returned
// instead (marked Fallback); 4xx responses still surface as errors.
func (c *Client) Options(ctx context.Context) (model.AvailableOptions, error) {
	var opts model.AvailableOptions
	err := c.do(ctx, http.MethodGet, "/projects/options", nil, &opts)
	if err != nil {
		if ge, ok := AsError(err); ok && !ge.Retryable() {
			return model.AvailableOptions{}, err
		}
		c.log.WithError(err).Warn("options fetch failed, using fallback set")
		return FallbackOptions(), nil
	}
	return opts, nil
}

func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (model.Project, error) {
	var project model.Project
	if err := c.do(ctx, http.MethodPost, "/projects", req, &project); err != nil {
		return model.Project{}, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (c *Client) Project(ctx context.Context, id int64) (model.Project, error) {
	var project model.Project
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d", id), nil, &project); err != nil {
		return model.Project{}, fmt.Errorf("get project %d: %w", id, err)
	}
	return project, nil
}

func (c *Client) StartImageGeneration(ctx context.Context, projectID int64) (model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%d/generate-images", projectID), nil, &task); err != nil {
		return model.Task{}, fmt.Errorf("start image generation for project %d: %w", projectID, err)
	}
	return task, nil
}

func (c *Client) RegenerateAsset(ctx context.Context, projectID, assetID int64) (model.Task, error) {
	var task model.Task
	path := fmt.Sprintf("/projects/%d/regenerate-asset/%d", projectID, assetID)
	if err := c.do(ctx, http.MethodPost, path, nil, &task); err != nil {
		return model.Task{}, fmt.Errorf("regenerate asset %d: %w", assetID, err)
	}
	return task, nil
}

func (c *Client) Assets(ctx context.Context, projectID int64, assetType string) ([]model.Asset, error) {
	path := fmt.Sprintf("/projects/%d/assets?asset_type=%s", projectID, url.QueryEscape(assetType))
	var assets []model.Asset
	if err := c.do(ctx, http.MethodGet, path, nil, &assets); err != nil {
		return nil, fmt.Errorf("get assets for project %d: %w", projectID, err)
	}
	return assets, nil
}

// CreateVideo submits the composition job. Callers must pass only usable
// asset ids; an empty list is rejected here before any network traffic.
func (c *Client) CreateVideo(ctx context.Context, projectID int64, req CreateVideoRequest) (model.Task, error) {
	if len(req.SelectedAssetIDs) == 0 {
		return model.Task{}, fmt.Errorf("create video for project %d: no asset ids provided", projectID)
	}
	var task model.Task
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%d/create-video", projectID), req, &task); err != nil {
		return model.Task{}, fmt.Errorf("create video for project %d: %w", projectID, err)
	}
	return task, nil
}

func (c *Client) TaskStatus(ctx context.Context, taskID string) (model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tasks/%s/status", url.PathEscape(taskID)), nil, &task); err != nil {
		return model.Task{}, fmt.Errorf("get status for task %s: %w", taskID, err)
	}
	return task, nil
}

// errorBody is the error envelope backends use for non-2xx responses.
type errorBody struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	requestID := uuid.NewString()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log := c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})
	log.Debug("backend request")

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("backend request failed")
		return &Error{Status: 0, Message: err.Error(), RequestID: requestID}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body, resp.StatusCode)
		log.WithField("status", resp.StatusCode).Warn("backend returned error")
		return &Error{Status: resp.StatusCode, Message: msg, RequestID: requestID}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s %s: %w", method, path, err)
	}
	return nil
}

func readErrorMessage(r io.Reader, status int) string {
	data, err := io.ReadAll(io.LimitReader(r, 8192))
	if err == nil && len(data) > 0 {
		var body errorBody
		if json.Unmarshal(data, &body) == nil {
			if body.Error != "" {
				return body.Error
			}
			if body.Detail != "" {
				return body.Detail
			}
		}
	}
	return fmt.Sprintf("API error %d", status)
}
