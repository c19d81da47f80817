package model

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, s)
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleClient, RoleProvider:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, s)
	}
}

// Actor is an authenticated caller as identified by the gateway.
type Actor struct {
	Role Role
	ID   string
}

func (a Actor) Validate() error {
	if _, err := ParseRole(string(a.Role)); err != nil {
		return err
	}
	if a.ID == "" {
		return fmt.Errorf("%w: actor id is required", ErrInvalidArgument)
	}
	return nil
}

// ListFilter selects one of the two appointment list views.
type ListFilter string

const (
	FilterUpcoming ListFilter = "upcoming"
	FilterHistory  ListFilter = "history"
)

func ParseListFilter(s string) (ListFilter, error) {
	switch f := ListFilter(s); f {
	case FilterUpcoming, FilterHistory:
		return f, nil
	case "":
		return FilterUpcoming, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", ErrInvalidArgument, s)
	}
}

// Statuses returns the statuses included in the view.
func (f ListFilter) Statuses() []Status {
	if f == FilterHistory {
		return []Status{StatusConfirmed, StatusCompleted, StatusCancelled}
	}
	return []Status{StatusPending}
}
