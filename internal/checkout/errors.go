package checkout

import "errors"

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrInvalidCart    = errors.New("cart item invalid")
	ErrBaseURLMissing = errors.New("portal base url not configured")
	ErrSessionCreate  = errors.New("checkout session creation failed")
)
