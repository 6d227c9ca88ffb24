package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrEmptyWords           = fmt.Errorf("no words have been found")
	ErrEmptyMessage         = fmt.Errorf("message text is empty")
	ErrUnknownChannel       = fmt.Errorf("unknown channel")
	ErrTransportUnavailable = fmt.Errorf("cross-context transport unavailable")
	ErrBindingClosed        = fmt.Errorf("transport binding closed")
	ErrIdentityResolution   = fmt.Errorf("identity resolution failed")
	ErrQuotaStore           = fmt.Errorf("quota store unavailable")
	ErrCapabilityFailure    = fmt.Errorf("ai reply capability failed")
	ErrEmptyReply           = fmt.Errorf("ai reply is empty")
	ErrReplyQueueFull       = fmt.Errorf("reply queue is full")
	ErrInvalidFrame         = fmt.Errorf("invalid relay frame")
)

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
