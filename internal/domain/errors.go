package domain

import "errors"

// Sentinel errors shared by repositories and services.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotRSVPd is returned by a store refusing a check-in for a user outside the RSVP set.
	ErrNotRSVPd = errors.New("user has not RSVP'd")
	// ErrCheckedIn is returned by a store refusing to drop the RSVP of a checked-in user.
	ErrCheckedIn = errors.New("user is already checked in")
	// ErrOffline is returned when a mutation was queued for replay instead of applied.
	ErrOffline = errors.New("offline: operation queued")
)
