package engine

import (
	"errors"
	"fmt"

	"github.com/harrisonrobin/hubsync/pkg/model"
)

var (
	// ErrRefreshInProgress is returned when a refresh is requested while
	// another one is running. It signals a no-op, not a failure.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrTaskNotFound      = errors.New("task not found")
	ErrPacketNotFound    = errors.New("work packet not found")
	ErrNoStations        = errors.New("no stations configured")
)

// FetchError reports that one station could not be fetched this cycle.
type FetchError struct {
	Station model.Station
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch station %s: %v", e.Station, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports that a status write did not reach the remote store.
type WriteError struct {
	TaskID  string
	Station model.Station
	Status  model.Status
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s=%s at %s: %v", e.TaskID, e.Status, e.Station, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
