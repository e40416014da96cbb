package txn

import "fmt"

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// LockAcquisitionFailure signals that an admission slot could not be obtained.
	LockAcquisitionFailure
	// NonExistingLock signals a release of a MultiLock name that was never acquired.
	NonExistingLock
	// NoAction signals firing a Transaction that has no action bound.
	NoAction
	// NotAMethod signals wrapping or invoking something that is not a (registered) method.
	NotAMethod
	// Timeout signals that the process-wide maxTime elapsed before the action settled.
	Timeout
)

// Error is the package's custom error carrying an ErrorCode for coarse classification.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e Error) Error() string {
	return fmt.Sprintf("Error %d: %v", e.Code, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}
