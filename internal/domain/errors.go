package domain

import "errors"

var (
	ErrCheckTimeout       = errors.New("check timeout")
	ErrConnectionFailure  = errors.New("connection failure")
	ErrProtocolFailure    = errors.New("protocol failure")
	ErrConfigInvalid      = errors.New("configuration invalid")
	ErrActionFailed       = errors.New("action execution failed")
	ErrDeliveryFailed     = errors.New("notification delivery failed")
	ErrUnknownServiceType = errors.New("unknown service type")
)
