// Package cloud implements the client-side synchronization engine between the local library and the linked
// cloud service.
//
// # Components
//
// The [Synchronizer] owns one instance of each component for a linked account:
//
//  1. [OutgoingBuffer] : coalesces local mutations into [models.SyncOperation]s and flushes them 500ms after the
//     last change. Updates of the same object merge field by field (last write wins). Failures are logged and
//     dropped.
//  2. [ListenTracker] : mirrors the track being listened to as a server-side listen. A listen is submitted after a
//     2s delay, ended when it lasted at least 15s and deleted otherwise.
//  3. [RetryScheduler] : replays listen requests that got no response, backing off 10s, 30s, 60s, 180s, 300s.
//  4. [PlaylistMerger] : reconciles cloud playlists with local ones by id, then by name, without duplicating tracks.
//  5. [Identity] : device id, configuration id, sync flags and the link registry of the account.
//
// # Origins
//
// Local library changes are observed through [Library.Subscribe]. Every mutation the engine applies on behalf of
// the server is tagged [models.OriginRemote] and ignored by the observer, so remote changes are never echoed back.
//
// # Inbound Mutations
//
// [Synchronizer.UpdateObject], [Synchronizer.CreateObject], [Synchronizer.DeleteObject] and
// [Synchronizer.ExecuteCommand] are driven by server push notifications (see the server package).
//
// # Error Handling
//
// Nothing here is fatal. Transport failures of listen requests are retried; unexpected statuses and malformed
// payloads are logged and skipped. Inbound calls return the sentinel errors of the shared package
// ([shared.ErrMalformedPayload], [shared.ErrUnknownObject], [shared.ErrPlaylistNotFound]).
package cloud
