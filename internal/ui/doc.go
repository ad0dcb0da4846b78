// Package ui implements the sync dashboard using bubbletea's Elm architecture.
//
// The dashboard has three views:
//  1. [StatusView] : Linked account, device, configuration and links
//  2. [PlaylistView] : Local playlists and their cloud state
//  3. [EventView] : Live engine updates from the synchronizer
//
// The [Model] receives engine updates through a channel, one message per update, so the UI never blocks the engine.
// Keyboard navigation uses vim-style bindings (j/k, tab, p, q) with contextual help via charmbracelet/bubbles/help.
package ui
