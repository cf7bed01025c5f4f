package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeResourceExhausted  = Code(codes.ResourceExhausted)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusBadRequest,
	CodeResourceExhausted:  http.StatusTooManyRequests,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// Reason identifies a game outcome independently of its message, so callers can
// match errors with errors.Is against the sentinels below.
type Reason string

const (
	ReasonGameNotFound      Reason = "GAME_NOT_FOUND"
	ReasonGameNotInProgress Reason = "GAME_NOT_IN_PROGRESS"
	ReasonNotInActiveGame   Reason = "NOT_IN_ACTIVE_GAME"
	ReasonPlayerEliminated  Reason = "PLAYER_ELIMINATED"
	ReasonRoundNotFound     Reason = "ROUND_NOT_FOUND"
	ReasonRoundEnded        Reason = "ROUND_ENDED"
	ReasonRoundNotStarted   Reason = "ROUND_NOT_STARTED"
	ReasonRateLimited       Reason = "RATE_LIMITED"
	ReasonInvalidGuess      Reason = "INVALID_GUESS"
	ReasonNotInQueue        Reason = "NOT_IN_QUEUE"
	ReasonInvalidIdentity   Reason = "INVALID_IDENTITY"
)

var (
	ErrGameNotFound      = New(CodeNotFound, WithReason(ReasonGameNotFound))
	ErrGameNotInProgress = New(CodeFailedPrecondition, WithReason(ReasonGameNotInProgress))
	ErrNotInActiveGame   = New(CodeNotFound, WithReason(ReasonNotInActiveGame))
	ErrPlayerEliminated  = New(CodeFailedPrecondition, WithReason(ReasonPlayerEliminated))
	ErrRoundNotFound     = New(CodeNotFound, WithReason(ReasonRoundNotFound))
	ErrRoundEnded        = New(CodeFailedPrecondition, WithReason(ReasonRoundEnded))
	ErrRoundNotStarted   = New(CodeFailedPrecondition, WithReason(ReasonRoundNotStarted))
	ErrRateLimited       = New(CodeResourceExhausted, WithReason(ReasonRateLimited))
	ErrInvalidGuess      = New(CodeInvalidArgument, WithReason(ReasonInvalidGuess))
	ErrNotInQueue        = New(CodeNotFound, WithReason(ReasonNotInQueue))
	ErrInvalidIdentity   = New(CodeUnauthenticated, WithReason(ReasonInvalidIdentity))
)

type Error struct {
	Code    Code   `json:"code"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target carries the same reason. Errors without a reason only
// match themselves.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Reason == "" || t.Reason == "" {
		return e == t
	}

	return e.Reason == t.Reason
}

// With derives a new error from a sentinel, keeping its code and reason.
func (e *Error) With(opts ...Option) *Error {
	c := &Error{
		Code:    e.Code,
		Reason:  e.Reason,
		Message: e.Message,
		err:     e.err,
	}

	for _, opt := range opts {
		opt.apply(c)
	}

	return c
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// Is is errors.Is, re-exported so callers importing this package need not alias the standard one.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Join is errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(r Reason) Option {
	return optionFunc(func(e *Error) {
		e.Reason = r
		e.Message = string(r)
	})
}
