package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication and account errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrNotLinked        = fmt.Errorf("no linked account")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Remote service errors
	ErrTransport          = fmt.Errorf("transport failure")
	ErrUnexpectedStatus   = fmt.Errorf("unexpected status")
	ErrMalformedPayload   = fmt.Errorf("malformed payload")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Local state errors
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrLinkNotFound     = fmt.Errorf("link not found")
	ErrUnknownObject    = fmt.Errorf("unknown object type")
	ErrUnknownCommand   = fmt.Errorf("unknown command")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
