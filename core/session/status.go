// Package session classifies coaching sessions by how close they are to their start time.
package session

import (
	"time"
)

const (
	// OngoingWindow is how long before its start a session counts as ongoing.
	OngoingWindow = 10 * time.Minute
	// LockWindow is how long before its start a session can no longer be edited.
	LockWindow = 24 * time.Hour
	// RefreshInterval is how often a watched status is recomputed.
	RefreshInterval = time.Minute
)

var nowFunc = time.Now // mockable

type Status string

const (
	StatusOngoing          Status = "ongoing"
	StatusUpcomingLocked   Status = "upcoming-locked"
	StatusUpcomingEditable Status = "upcoming-editable"
)

// Result is the status of a session.
// Only editable sessions carry a time left to edit: whole hours when at least an hour is left,
// otherwise zero hours and the whole minutes left.
type Result struct {
	Status            Status `json:"status"`
	HoursLeftToEdit   *int   `json:"hoursLeftToEdit,omitempty"`
	MinutesLeftToEdit *int   `json:"minutesLeftToEdit,omitempty"`
}

// Editable reports whether the session can still be rescheduled or cancelled.
func (r Result) Editable() bool { return r.Status == StatusUpcomingEditable }

// Classify computes the status of a session starting at start, as seen at now.
func Classify(now, start time.Time) Result {
	until := start.Sub(now)
	switch {
	case until <= 0:
		// started or over
		return Result{Status: StatusUpcomingLocked}
	case until <= OngoingWindow:
		return Result{Status: StatusOngoing}
	case until <= LockWindow:
		return Result{Status: StatusUpcomingLocked}
	}

	left := until - LockWindow
	res := Result{Status: StatusUpcomingEditable}
	if hours := int(left / time.Hour); hours >= 1 {
		res.HoursLeftToEdit = &hours
	} else {
		minutes := int(left / time.Minute)
		res.HoursLeftToEdit = &hours
		res.MinutesLeftToEdit = &minutes
	}
	return res
}

// Now classifies a session against the current time.
func Now(start time.Time) Result {
	return Classify(nowFunc(), start)
}
