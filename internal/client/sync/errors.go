package sync

import "errors"

var (
	ErrSyncAlreadyRunning = errors.New("sync operation already running")
	ErrConflictsPending   = errors.New("unresolved conflicts pending")
	ErrUnknownConflict    = errors.New("no active conflict for path")
)
