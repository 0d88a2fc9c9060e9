package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrTickInProgress = errors.New("tick already in progress")
	ErrNotFound       = errors.New("notification not found")
	ErrBadInterval    = errors.New("poll interval must be positive")
)

// StoreError means the notification store could not be read or written.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// DeliveryError is a failed render or send for one target.
type DeliveryError struct {
	Target string
	Err    error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("deliver to %s: %v", e.Target, e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }
