package service

import "errors"

var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrMissingClient         = errors.New("client id is required")
	ErrMissingPaymentMethod  = errors.New("payment method is required")
	ErrUnknownPaymentMethod  = errors.New("unknown payment method")
	ErrIllegalTransition     = errors.New("illegal checkout transition")
	ErrPaymentNotCompleted   = errors.New("payment not completed")
	ErrVerificationUnsettled = errors.New("payment verification could not be completed")
)
