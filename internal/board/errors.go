package board

import (
	"errors"
	"fmt"
)

// ErrReasonCanceled is returned when an interactive reason prompt is
// dismissed. Nothing has been written at that point.
var ErrReasonCanceled = errors.New("reason entry canceled")

// IllegalTransitionError rejects a move the status graph does not allow.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

// MilestonesIncompleteError rejects a move into a status that requires
// milestone completion the project has not reached.
type MilestonesIncompleteError struct {
	Status    string
	Progress  int
	Threshold int
}

func (e MilestonesIncompleteError) Error() string {
	return fmt.Sprintf("status %s requires milestone progress >= %d, project is at %d", e.Status, e.Threshold, e.Progress)
}

// ReasonRequiredError signals that the destination status demands a reason
// and none was supplied. The caller re-submits the same move with one.
type ReasonRequiredError struct {
	Status string
	Prompt string
}

func (e ReasonRequiredError) Error() string {
	return fmt.Sprintf("status %s requires a reason", e.Status)
}

// PersistenceError wraps a storage failure after the authoritative part of
// an operation already committed. The in-memory state is ahead of disk; the
// caller retries the flush rather than undoing the commit.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }
