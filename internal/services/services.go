// package services defines the signed request capability used to talk to the linked cloud service
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"

	"github.com/desertthunder/playsync/internal/shared"
)

// Request is one call against the linked service. Path is relative to the service base URL, e.g. "/listens.json".
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Response is the status and body of a completed call.
type Response struct {
	StatusCode int
	Body       []byte
}

// SignedRequestClient executes authorized requests against the linked service.
//
// Do returns an error wrapping [shared.ErrTransport] when no response was received (including timeouts).
// Any received response, whatever its status, is returned without error.
type SignedRequestClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Expect returns an error wrapping [shared.ErrUnexpectedStatus] unless the response status is one of codes.
func (r *Response) Expect(codes ...int) error {
	if slices.Contains(codes, r.StatusCode) {
		return nil
	}
	return fmt.Errorf("%w: got %d, want %v", shared.ErrUnexpectedStatus, r.StatusCode, codes)
}

// Decode unmarshals the response body into v, wrapping failures in [shared.ErrMalformedPayload].
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrMalformedPayload, err)
	}
	return nil
}

// Call performs req and checks the status against codes.
func Call(ctx context.Context, c SignedRequestClient, req *Request, codes ...int) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Expect(codes...); err != nil {
		return resp, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	return resp, nil
}

// GetJSON performs a GET on path expecting 200 and decodes the body into v.
func GetJSON(ctx context.Context, c SignedRequestClient, path string, v any) error {
	resp, err := Call(ctx, c, &Request{Method: "GET", Path: path}, 200)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}
