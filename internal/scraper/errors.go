package scraper

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRetailer  = errors.New("no target configured for retailer")
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// BlockedError reports a page the block detector classified as a bot
// challenge. Reason is the detector's explanation.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked: %s", e.Reason)
}

// panicError wraps a recovered panic from inside an attempt.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("attempt panicked: %v", e.value)
}
