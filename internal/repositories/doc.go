// Package repositories implements SQLite persistence for the local playlist library and linked accounts.
//
// Key Implementations:
//   - [PlaylistRepository] : library.Store over the playlists and playlist_tracks tables
//   - [IdentityRepository] : cloud.IdentityStore over the identities and links tables
//
// Child rows (tracks, links) are rewritten in full inside one transaction on every save, keeping their
// position column in list order.
package repositories
