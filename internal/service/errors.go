package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// Attempt lifecycle errors. Handlers map each onto a response.ErrCode.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidState   = errors.New("operation not allowed in the current state")
	ErrOutOfWindow    = errors.New("exam is outside its availability window")
	ErrLimitReached   = errors.New("maximum number of attempts reached")
	ErrExpired        = errors.New("attempt time limit has expired")
	ErrPendingGrading = errors.New("responses still require manual grading")
)

// ExpiredError reports that the time limit lapsed and the attempt was
// auto-submitted as a side effect. Attempt is the final state.
type ExpiredError struct {
	Attempt *model.Attempt
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("%s: attempt %s was auto-submitted", ErrExpired, e.Attempt.ID)
}

func (e *ExpiredError) Unwrap() error {
	return ErrExpired
}

// storeErr translates repository sentinels into service errors.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repository.ErrStaleState):
		return fmt.Errorf("%w: %s changed concurrently", ErrInvalidState, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
