// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

type reply struct {
	status int
	body   string
	err    error
	gate   chan struct{}
}

// RecordingClient is a test double for [services.SignedRequestClient].
//
// Replies are registered per "METHOD path". When several replies are queued for the same route they are used in order
// and the last one sticks. Unregistered routes answer 404.
type RecordingClient struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   []services.Request
}

func NewRecordingClient() *RecordingClient {
	return &RecordingClient{replies: map[string][]reply{}}
}

func route(method, path string) string { return method + " " + path }

// Respond queues a response for the route.
func (c *RecordingClient) Respond(method, path string, status int, body string) *RecordingClient {
	return c.queue(method, path, reply{status: status, body: body})
}

// Fail queues a transport failure for the route.
func (c *RecordingClient) Fail(method, path string) *RecordingClient {
	return c.queue(method, path, reply{err: fmt.Errorf("%w: connection refused", shared.ErrTransport)})
}

// Hold queues a response that is only delivered once release is called, keeping the request in flight.
func (c *RecordingClient) Hold(method, path string, status int, body string) (release func()) {
	gate := make(chan struct{})
	c.queue(method, path, reply{status: status, body: body, gate: gate})
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (c *RecordingClient) queue(method, path string, r reply) *RecordingClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := route(method, path)
	c.replies[k] = append(c.replies[k], r)
	return c
}

// Do implements [services.SignedRequestClient].
func (c *RecordingClient) Do(ctx context.Context, req *services.Request) (*services.Response, error) {
	c.mu.Lock()
	c.calls = append(c.calls, *req)
	k := route(req.Method, req.Path)
	r := reply{status: http.StatusNotFound}
	if q := c.replies[k]; len(q) > 0 {
		r = q[0]
		if len(q) > 1 {
			c.replies[k] = q[1:]
		}
	}
	c.mu.Unlock()

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", shared.ErrTransport, ctx.Err())
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &services.Response{StatusCode: r.status, Body: []byte(r.body)}, nil
}

// Calls returns every request received so far.
func (c *RecordingClient) Calls() []services.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]services.Request(nil), c.calls...)
}

// CallsTo returns the requests received for one route.
func (c *RecordingClient) CallsTo(method, path string) []services.Request {
	var out []services.Request
	for _, r := range c.Calls() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the number of requests received so far.
func (c *RecordingClient) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// WaitForCalls blocks until at least n requests were received on the route or fails the test after timeout.
func (c *RecordingClient) WaitForCalls(t *testing.T, method, path string, n int, timeout time.Duration) []services.Request {
	t.Helper()
	var calls []services.Request
	ok := Eventually(timeout, func() bool {
		calls = c.CallsTo(method, path)
		return len(calls) >= n
	})
	if !ok {
		t.Fatalf("expected %d %s %s calls, got %d", n, method, path, len(calls))
	}
	return calls
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails once maxWrites writes went through
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
