package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/shared"
)

const defaultRequestTimeout = 30 * time.Second

// CloudService is the [SignedRequestClient] backed by an OAuth2-authorized [http.Client].
//
// Every request carries the device_id query parameter once a device has been registered.
type CloudService struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	deviceID   atomic.Uint64
	logger     *log.Logger
}

// NewCloudService creates a client for the service at baseURL.
//
// client is expected to add authorization (see [NewAuthorizedClient]); it defaults to [http.DefaultClient].
func NewCloudService(baseURL string, client *http.Client, timeout time.Duration, logger *log.Logger) *CloudService {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &CloudService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		timeout:    timeout,
		logger:     logger.With("component", "cloud-service"),
	}
}

// SetDeviceID sets the device id appended to every request. 0 disables it.
func (c *CloudService) SetDeviceID(id uint) {
	c.deviceID.Store(uint64(id))
}

// DeviceID returns the device id appended to requests.
func (c *CloudService) DeviceID() uint {
	return uint(c.deviceID.Load())
}

// BaseURL returns the service root.
func (c *CloudService) BaseURL() string {
	return c.baseURL
}

// Do implements [SignedRequestClient].
func (c *CloudService) Do(ctx context.Context, r *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.buildURL(r.Path, r.Query)

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s: %w", shared.ErrTransport, r.Method, r.Path, shared.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", shared.ErrTransport, r.Method, r.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrTransport, err)
	}

	c.logger.Debug("request", "method", r.Method, "path", r.Path, "status", resp.StatusCode, "took", time.Since(start))

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *CloudService) buildURL(path string, query url.Values) string {
	q := url.Values{}
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	if id := c.DeviceID(); id != 0 {
		q.Set("device_id", strconv.FormatUint(uint64(id), 10))
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := c.baseURL + path
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}
	return target
}
