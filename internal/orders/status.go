package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPacked    Status = "packed"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true, StatusExpired: true},
	StatusConfirmed: {StatusPacked: true, StatusCancelled: true},
	StatusPacked:    {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
	StatusExpired:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validNext[st]; !ok {
		return "", &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", s)}
	}
	return st, nil
}

// Editable reports whether items may still be changed and holds adjusted.
func (s Status) Editable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Holding reports whether an order in this status owns stock reservations.
func (s Status) Holding() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}
