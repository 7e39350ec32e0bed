package models

// CanTransition reports whether a booking may move from one status to another.
//
//	pending  -> approved | rejected | cancelled
//	approved -> completed
//
// rejected, cancelled and completed are terminal; deletion is handled
// separately through Deletable.
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case StatusPending:
		switch to {
		case StatusApproved, StatusRejected, StatusCancelled:
			return true
		case StatusPending, StatusCompleted:
			return false
		}
	case StatusApproved:
		return to == StatusCompleted
	case StatusRejected, StatusCancelled, StatusCompleted:
		return false
	}
	return false
}
