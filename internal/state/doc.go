// Package state provides the filesystem-backed stores: the task vault and
// the daily activity history.
package state

import "github.com/user/deskhand/internal/types"

// Compile-time interface compliance checks.
var _ types.HistoryLog = (*History)(nil)
