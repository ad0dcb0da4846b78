// Package models defines the data exchanged between the local player state and the linked cloud account.
//
// The package contains three groups of types:
//
// 1. Library entities mirrored on the server
//   - [Track] : a local file identified solely by its path
//   - [PlaylistData] : a named, ordered, path-unique track collection with an optional cloud ID
//
// 2. Synchronization records
//   - [SyncOperation] : a queued create/update/delete bound for the remote service
//   - [Params] : ordered key/value parameters with last-write-wins merging
//   - [SongsDelta] : the added/removed track delta carried by playlist updates
//   - [ListenSession] : the play event currently being tracked against the server
//   - [RetryItem] : a failed idempotent request waiting for replay
//
// 3. Account state
//   - [CloudIdentity] : the linked user, device and configuration
//   - [Link] : a third-party connection with share/listen/donate/create-playlist capabilities
//
// Every local mutation carries an [Origin] so that changes applied on behalf of the server are never echoed back.
package models
