// Package services defines [SignedRequestClient], the capability the synchronization engine uses to reach the
// linked cloud service, and implements it with [CloudService].
//
// # Requests
//
// A [Request] names a method, a path relative to the service root (e.g. "/listens.json"), query values and an
// optional JSON body. [CloudService] appends the registered device_id to every query and applies a per-request
// timeout.
//
// # Error Handling
//
// Errors follow the taxonomy of the synchronization engine:
//   - [shared.ErrTransport] : no response was received (connection failure, timeout)
//   - [shared.ErrUnexpectedStatus] : a response arrived with a status the caller did not expect ([Response.Expect])
//   - [shared.ErrMalformedPayload] : the body could not be decoded ([Response.Decode])
//
// Only the first is retryable, and only for listen requests.
//
// # Authentication
//
// [NewOAuthConfig] builds the [oauth2.Config] from the [cloud] config section. [NewAuthorizedClient] wraps a saved
// token in an [http.Client] that refreshes it and persists refreshed tokens with [SaveToken].
package services
