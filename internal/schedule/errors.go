package schedule

import (
	"errors"
	"fmt"
)

// Kind classifies failures at the external scheduling-service boundary.
type Kind string

const (
	// KindAlreadyGone marks a delete whose target no longer exists. Treated
	// as success by callers performing idempotent cleanup.
	KindAlreadyGone Kind = "already_gone"
	// KindAuthExpired marks an authorization failure that survived the single
	// token refresh attempt. The sync capability degrades to disabled.
	KindAuthExpired Kind = "auth_expired"
	// KindTransient marks any other external failure. The affected item is
	// skipped; the batch continues.
	KindTransient Kind = "transient"
	// KindNoSlot marks a scheduling request for which no free slot exists
	// within the bounded search window.
	KindNoSlot Kind = "no_slot"
)

// Error is a classified scheduling-service failure.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("schedule.%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("schedule.%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, kind Kind, cause error) error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// KindOf extracts the failure kind from an error chain. Unclassified errors
// report as transient.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindTransient
}

// IsAlreadyGone reports whether err marks an idempotent-delete success.
func IsAlreadyGone(err error) bool {
	return err != nil && KindOf(err) == KindAlreadyGone
}
