package market

import "errors"

// Module errors.
var (
	ErrPostNotFound  = errors.New("post not found")
	ErrOfferNotFound = errors.New("chat offer not found")
)
