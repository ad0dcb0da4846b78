// Package server provides the local HTTP listener of the sync daemon.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] uses [http.ServeMux] with
// per-path method dispatch; [NewRouter] installs request ids, panic recovery and request logging.
//
// # OAuth Callback Handler
//
// [OAuthHandler] completes the authorization code flow of "playsync link": it validates the state parameter,
// exchanges the code, stores the token and delivers it through a channel. Only one callback is processed.
//
// # Push
//
// [PushHandler] accepts POST /push notifications
//
//	{"action": "update", "object_type": "playlist", "object_id": 42, "payload": {...}}
//
// and routes them to a [Receiver]. Actions are update, create, delete and execute (with command and
// configuration_id). Malformed bodies answer 400, unknown objects or commands 422, missing objects 404.
package server
