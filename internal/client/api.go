package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"qrelay/internal/constants"
	"qrelay/internal/session"
	"qrelay/internal/types"
	"qrelay/internal/utils"
)

// APIError is a non-2xx response from the relay. It unwraps to the matching
// session error so callers can use errors.Is.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned status %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	switch e.Kind {
	case types.ErrKindNotFound:
		return session.ErrNotFound
	case types.ErrKindConflict:
		return session.ErrConflict
	case types.ErrKindInvalidState:
		return session.ErrInvalidState
	case types.ErrKindPayloadTooLarge:
		return session.ErrPayloadTooLarge
	case types.ErrKindStorage:
		return session.ErrStorage
	}
	return nil
}

// Image is a fetched image.
type Image struct {
	ID          string
	Name        string
	ContentType string
	Data        []byte
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(serverURL string) *Client {
	base, skipTLSVerify := utils.NormalizeServerURL(serverURL)

	httpClient := &http.Client{Timeout: constants.RequestTimeout}
	if skipTLSVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{baseURL: base, httpClient: httpClient}
}

// NewWithHTTPClient uses hc for every request.
func NewWithHTTPClient(serverURL string, hc *http.Client) *Client {
	base, _ := utils.NormalizeServerURL(serverURL)
	return &Client{baseURL: base, httpClient: hc}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) CreateSession(ctx context.Context) (*types.CreateSessionResponse, error) {
	var out types.CreateSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, constants.EndpointSessions, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Connect(ctx context.Context, sessionID string) error {
	var out types.ConnectResponse
	return c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "connect"), nil, "", &out)
}

func (c *Client) Status(ctx context.Context, sessionID string, role session.Role) (*types.StatusResponse, error) {
	path := sessionPath(sessionID, "status") + "?" + url.Values{constants.QueryRole: {string(role)}}.Encode()
	var out types.StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload sends data as the "image" field of a multipart form.
func (c *Client) Upload(ctx context.Context, sessionID, name string, data []byte) (*types.UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(constants.UploadFormField, name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out types.UploadResponse
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID, "images"), &body, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Fetch(ctx context.Context, sessionID, imageID string) (*Image, error) {
	resp, err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "images/"+imageID), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	img := &Image{
		ID:          imageID,
		Name:        imageID,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		img.Name = params["filename"]
	}
	return img, nil
}

func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var out types.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, constants.EndpointHealth, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do returns the response for 2xx statuses and an *APIError otherwise.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er types.ErrorResponse
	if json.Unmarshal(raw, &er) == nil {
		apiErr.Kind = er.Error
		apiErr.Message = er.Message
	} else {
		apiErr.Message = string(bytes.TrimSpace(raw))
	}
	return nil, apiErr
}

func sessionPath(sessionID, rest string) string {
	return constants.EndpointSessions + "/" + url.PathEscape(sessionID) + "/" + rest
}

// pollInterval returns a safe heartbeat period for a given liveness window.
func pollInterval(requested time.Duration) time.Duration {
	if requested <= 0 {
		return constants.DefaultPollInterval
	}
	return requested
}
