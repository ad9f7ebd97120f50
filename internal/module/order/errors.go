package order

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrNoPaymentContext   = errors.New("exactly one payment context is required")
	ErrOwnPost            = errors.New("cannot order your own post")
	ErrInvalidAmount      = errors.New("order amount must be positive")
	ErrNotOutsourcing     = errors.New("post is not an outsourcing post")
	ErrSourceUnavailable  = errors.New("post or offer is no longer available")
	ErrOrderNotCancelable = errors.New("order cannot be cancelled")
	ErrNotOrderParty      = errors.New("user is not a party to this order")
	ErrNumberExhausted    = errors.New("could not generate a unique order number")
)
