package payment

import "errors"

var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrInvalidAmount      = errors.New("payment amount must be positive")
	ErrAmountMismatch     = errors.New("approval amount does not match payment amount")
	ErrAlreadyProcessed   = errors.New("payment already processed")
	ErrNotApprovable      = errors.New("payment is not in an approvable state")
	ErrNumberExhausted    = errors.New("could not generate a unique toss order id")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrMalformedPayload   = errors.New("webhook payload is not a JSON object")
	ErrDuplicateDelivery  = errors.New("webhook event already processed")
	ErrWebhookSecretUnset = errors.New("webhook secret is not configured")
)
