package sync

// Failure reasons carried by Error
const (
	ReasonFetchFailed      = "FetchFailed"
	ReasonNotFoundUpstream = "NotFoundUpstream"
	ReasonStorageFailed    = "StorageFailed"
)

// Error is a structured sync failure
type Error struct {
	Err      error
	Message  string
	SourceID string
	Reason   string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
