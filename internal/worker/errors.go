package worker

import (
	"errors"
)

var (
	ErrJobNotFound   = errors.New("worker: job not found")
	ErrClaimLost     = errors.New("worker: claim lost")
	ErrHardTimeLimit = errors.New("worker: hard time limit exceeded")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The supervisor fails the job
// on the current attempt instead of scheduling another one.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
