package wire

import "errors"

// Wire-codec-local error kinds (spec §7). These never escape the
// session layer; internal/session lifts them into session-level kinds.
var (
	ErrCreation = errors.New("wire: creation error")
	ErrReading  = errors.New("wire: reading error")
	ErrSending  = errors.New("wire: sending error")
)
