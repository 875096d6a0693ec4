package order

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownStatus is returned for names or ids that are not an order status.
var ErrUnknownStatus = errors.New("order: unknown status")

// ErrInvalidTransition is returned when the requested status cannot follow the current one.
var ErrInvalidTransition = errors.New("order: invalid status transition")

// Status is the lifecycle state of an order, stored as status_id.
type Status int16

const (
	StatusPending   Status = 1
	StatusShipped   Status = 2
	StatusDelivered Status = 3
	StatusCancelled Status = 4
	StatusPaid      Status = 5
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusShipped:   "shipped",
	StatusDelivered: "delivered",
	StatusCancelled: "cancelled",
	StatusPaid:      "paid",
}

var transitions = map[Status][]Status{
	StatusPending: {StatusShipped, StatusDelivered, StatusCancelled, StatusPaid},
	StatusPaid:    {StatusShipped, StatusDelivered, StatusCancelled},
	StatusShipped: {StatusDelivered, StatusCancelled},
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether an order in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts a name or a numeric id.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus accepts "pending", "Pending" or "1".
func ParseStatus(raw string) (Status, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(raw); err == nil {
		st := Status(n)
		if st.Valid() {
			return st, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnknownStatus, raw)
	}
	for st, name := range statusNames {
		if name == raw {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}
