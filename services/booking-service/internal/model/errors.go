package model

import "errors"

var (
	ErrInvalidService      = errors.New("invalid service")
	ErrOutsideWorkingHours = errors.New("outside working hours")
	ErrSlotConflict        = errors.New("slot conflict")
	ErrBusy                = errors.New("busy")
	ErrStaleState          = errors.New("stale state")
	ErrTransitionConflict  = errors.New("transition conflict")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrForbidden           = errors.New("forbidden")

	// ErrNotFound and ErrConflict are returned by storage backends.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("storage conflict")

	ErrInvalidArgument = errors.New("invalid argument")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
