package domain

import "errors"

// Business rule violations returned by the booking engine.
var (
	ErrInvalidWindow        = errors.New("invalid booking window")
	ErrEquipmentUnavailable = errors.New("equipment is not available for the requested dates")
	ErrDepositLimitExceeded = errors.New("deposit limit exceeded")
	ErrInvalidState         = errors.New("invalid state transition")
	ErrInvalidReturnDate    = errors.New("return date is before rental start")
	ErrInvalidCharge        = errors.New("invalid charge")
	ErrInvalidConfiguration = errors.New("invalid pricing configuration")
)

// Storage errors, raised by Store implementations.
var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)
