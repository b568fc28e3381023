package domain

import "fmt"

// ShipmentStatus represents the status of a shipment
type ShipmentStatus string

const (
	StatusCreated   ShipmentStatus = "created"
	StatusPickedUp  ShipmentStatus = "picked_up"
	StatusInTransit ShipmentStatus = "in_transit"
	StatusDelivered ShipmentStatus = "delivered"
	StatusException ShipmentStatus = "exception"
	StatusCancelled ShipmentStatus = "cancelled"
	StatusReturned  ShipmentStatus = "returned"
)

// AllStatuses lists every lifecycle state.
var AllStatuses = []ShipmentStatus{
	StatusCreated,
	StatusPickedUp,
	StatusInTransit,
	StatusDelivered,
	StatusException,
	StatusCancelled,
	StatusReturned,
}

var transitions = map[ShipmentStatus][]ShipmentStatus{
	StatusCreated:   {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusInTransit, StatusException},
	StatusInTransit: {StatusDelivered, StatusException},
	StatusException: {StatusReturned},
	StatusDelivered: {StatusReturned},
}

// ParseShipmentStatus validates a status name.
func ParseShipmentStatus(s string) (ShipmentStatus, error) {
	status := ShipmentStatus(s)
	if _, ok := statusIndex[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

var statusIndex = func() map[ShipmentStatus]struct{} {
	m := make(map[ShipmentStatus]struct{}, len(AllStatuses))
	for _, s := range AllStatuses {
		m[s] = struct{}{}
	}
	return m
}()

// IsTerminal reports whether no further transitions are accepted, with the
// exception of return-to-sender from delivered.
func (s ShipmentStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

// Next returns the statuses reachable in one step.
func (s ShipmentStatus) Next() []ShipmentStatus {
	return transitions[s]
}

// CheckTransition validates a single edge of the lifecycle graph.
func CheckTransition(from, to ShipmentStatus) error {
	if _, ok := statusIndex[to]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: shipment is %s", ErrShipmentClosed, from)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
