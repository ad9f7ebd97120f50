package order

// orderTransitions is the full status graph. Guarded transition methods on
// the model consult it so an out-of-order signal degrades to a no-op instead
// of corrupting a terminal state.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusPaid:       {OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusInProgress: {OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

func canTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
