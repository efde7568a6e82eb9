package domain

import "errors"

// Sentinel errors shared by stores and services. Stores return these (optionally wrapped)
// so the service and HTTP layers translate them exactly once.
var (
	ErrNotFound         = errors.New("not found")
	ErrExpired          = errors.New("expired")
	ErrRevoked          = errors.New("revoked")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrUsageExceeded    = errors.New("usage limit exceeded")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("conflict")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCheckInTimeout   = errors.New("check-in timed out")
)
