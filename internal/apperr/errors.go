package apperr

import "errors"

var (
	ErrLockHeld      = errors.New("another run holds the repository lock")
	ErrLedgerMissing = errors.New("ledger not found")
)
