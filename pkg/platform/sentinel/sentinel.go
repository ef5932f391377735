package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a concurrent writer won the race (unique constraint)
// - ErrSlotFull: slot capacity exhausted at reservation time
// - ErrAlreadyReleased: appointment was already released (safe to ignore)
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrExpired: soft hold or cached entry past its expiry
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, illegal transitions), use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrSlotFull        = errors.New("slot full")
	ErrAlreadyReleased = errors.New("already released")
	ErrInvalidState    = errors.New("invalid state")
	ErrExpired         = errors.New("expired")
	ErrUnavailable     = errors.New("unavailable")
)
