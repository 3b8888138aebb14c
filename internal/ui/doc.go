// Package ui implements an interactive terminal view of a bootstrap using bubbletea's Elm architecture.
//
// The TUI walks through three views:
//  1. [ConfirmView] : Show the target path, platform and manifest before anything runs
//  2. [ProgressView] : Monitor real-time progress updates with a spinner and progress bar
//  3. [ResultView] : List every package with its install status
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the Bootstrapper, so the bootstrap itself never waits on rendering.
//
// Keyboard bindings (enter/y, n, r, j/k, q) are shown as contextual help via charmbracelet/bubbles/help.
package ui
