package load

// transitions is the forward-only lifecycle table. A status never moves
// backward and delivered is terminal.
var transitions = map[Status][]Status{
	StatusOpen:      {StatusAccepted},
	StatusAccepted:  {StatusInTransit, StatusDelivered},
	StatusInTransit: {StatusDelivered},
	StatusDelivered: {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the load is assigned to a carrier and not yet
// delivered.
func (s Status) IsActive() bool {
	return s == StatusAccepted || s == StatusInTransit
}

// IsValid reports whether the status is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusInTransit, StatusDelivered:
		return true
	default:
		return false
	}
}
