package polling

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mymmrac/telego/telegoapi"
)

// ErrNoProcessor is returned by New when no processor is given.
var ErrNoProcessor = errors.New("polling: processor is required")

// ErrNoClient is returned by New when no client is given.
var ErrNoClient = errors.New("polling: client is required")

// FetchError is a getUpdates failure, including a webhook conflict that could not be resolved.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("polling: fetch updates: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ProcessingError is a failure returned by the Processor for one update.
type ProcessingError struct {
	UpdateID int
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("polling: process update %d: %v", e.UpdateID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// FatalError means the offset acknowledgement after a processing failure did not go through.
// Updates that were already processed may be delivered again after a restart.
type FatalError struct {
	Cause       *ProcessingError
	RecoveryErr error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("polling: offset acknowledgement failed, processed updates may be redelivered on restart: %v (after %v)", e.RecoveryErr, e.Cause)
}

func (e *FatalError) Unwrap() []error {
	return []error{e.Cause, e.RecoveryErr}
}

// IsWebhookConflict reports whether err is the Bot API refusing getUpdates because a webhook is set.
func IsWebhookConflict(err error) bool {
	var apiErr *telegoapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode == http.StatusConflict
}
