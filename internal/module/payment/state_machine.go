package payment

// paymentTransitions is the payment status graph. A done payment may still
// move to cancelled when the cancellation service reverses a captured
// charge; failed and cancelled are dead ends, a retry is a new row.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusDone, PaymentStatusReady, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusReady:     {PaymentStatusDone, PaymentStatusCancelled},
	PaymentStatusDone:      {PaymentStatusCancelled},
	PaymentStatusFailed:    {},
	PaymentStatusCancelled: {},
}

func canTransition(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
