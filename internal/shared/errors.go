package shared

import "errors"

// Error kinds shared by every module. Package sentinels wrap one of these so
// the transport layer can classify failures with errors.Is.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates the request was rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the document is not in a state that allows the action.
	ErrConflict = errors.New("conflict")
	// ErrBusy indicates another worker holds the document lock.
	ErrBusy = errors.New("document busy")
)

// UserSafeMessage returns the message safe to show to operators.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation), errors.Is(err, ErrConflict), errors.Is(err, ErrBusy):
		return err.Error()
	default:
		return "internal error"
	}
}
