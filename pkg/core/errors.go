package core

import (
	"errors"
	"fmt"
)

// Code is the machine-readable outcome reported to callers.
type Code string

// Failure codes.
const (
	CodeJobNotFound                  Code = "JOB_NOT_FOUND"
	CodeStageNotFound                Code = "STAGE_NOT_FOUND"
	CodeTaskNotFound                 Code = "TASK_NOT_FOUND"
	CodeJobNotInFiniteState          Code = "JOB_NOT_IN_FINITE_STATE"
	CodeJobInFiniteState             Code = "JOB_IN_FINITE_STATE"
	CodeStageInFiniteState           Code = "STAGE_IN_FINITE_STATE"
	CodeIllegalJobStatusTransition   Code = "ILLEGAL_JOB_STATUS_TRANSITION"
	CodeIllegalStageStatusTransition Code = "ILLEGAL_STAGE_STATUS_TRANSITION"
	CodeIllegalTaskStatusTransition  Code = "ILLEGAL_TASK_STATUS_TRANSITION"
	CodeValidation                   Code = "VALIDATION_ERROR"
	CodeConflict                     Code = "CONCURRENCY_CONFLICT"
	CodeInternal                     Code = "INTERNAL_ERROR"
)

// Success codes.
const (
	CodeJobModifiedSuccessfully   Code = "JOB_MODIFIED_SUCCESSFULLY"
	CodeJobDeletedSuccessfully    Code = "JOB_DELETED_SUCCESSFULLY"
	CodeStageModifiedSuccessfully Code = "STAGE_MODIFIED_SUCCESSFULLY"
	CodeTaskModifiedSuccessfully  Code = "TASK_MODIFIED_SUCCESSFULLY"
)

// Kind names the entity an error refers to.
type Kind string

const (
	KindJob   Kind = "JOB"
	KindStage Kind = "STAGE"
	KindTask  Kind = "TASK"
)

// Error is the typed rejection returned by every engine operation.
// Two Errors match under errors.Is when their codes are equal, so the
// package-level sentinels can be used as targets.
type Error struct {
	Code Code
	Kind Kind
	ID   string
	From string
	To   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "jobnik: " + string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrJobNotFound            = &Error{Code: CodeJobNotFound, Msg: "jobnik: job not found"}
	ErrStageNotFound          = &Error{Code: CodeStageNotFound, Msg: "jobnik: stage not found"}
	ErrTaskNotFound           = &Error{Code: CodeTaskNotFound, Msg: "jobnik: task not found"}
	ErrJobNotInFiniteState    = &Error{Code: CodeJobNotInFiniteState, Msg: "jobnik: job is not in a finite state"}
	ErrJobInFiniteState       = &Error{Code: CodeJobInFiniteState, Msg: "jobnik: job is in a finite state"}
	ErrStageInFiniteState     = &Error{Code: CodeStageInFiniteState, Msg: "jobnik: stage is in a finite state"}
	ErrIllegalJobTransition   = &Error{Code: CodeIllegalJobStatusTransition, Msg: "jobnik: illegal job status transition"}
	ErrIllegalStageTransition = &Error{Code: CodeIllegalStageStatusTransition, Msg: "jobnik: illegal stage status transition"}
	ErrIllegalTaskTransition  = &Error{Code: CodeIllegalTaskStatusTransition, Msg: "jobnik: illegal task status transition"}
	ErrValidation             = &Error{Code: CodeValidation, Msg: "jobnik: validation failed"}
	ErrConflict               = &Error{Code: CodeConflict, Msg: "jobnik: concurrent modification"}
)

var notFoundCodes = map[Kind]Code{
	KindJob:   CodeJobNotFound,
	KindStage: CodeStageNotFound,
	KindTask:  CodeTaskNotFound,
}

var illegalTransitionCodes = map[Kind]Code{
	KindJob:   CodeIllegalJobStatusTransition,
	KindStage: CodeIllegalStageStatusTransition,
	KindTask:  CodeIllegalTaskStatusTransition,
}

// NotFound reports a missing entity.
func NotFound(kind Kind, id string) *Error {
	return &Error{
		Code: notFoundCodes[kind],
		Kind: kind,
		ID:   id,
		Msg:  fmt.Sprintf("%s with id %s not found", kindLabel(kind), id),
	}
}

// IllegalTransition reports a status change outside the state machine.
func IllegalTransition[S ~string](kind Kind, id string, from, to S) *Error {
	return &Error{
		Code: illegalTransitionCodes[kind],
		Kind: kind,
		ID:   id,
		From: string(from),
		To:   string(to),
		Msg:  fmt.Sprintf("Illegal status transition from %s to %s", from, to),
	}
}

// NotInFiniteState reports a job that must be terminal for the requested operation.
func NotInFiniteState(id string, status JobStatus) *Error {
	return &Error{
		Code: CodeJobNotInFiniteState,
		Kind: KindJob,
		ID:   id,
		From: string(status),
		Msg:  fmt.Sprintf("job %s is %s and not in a finite state", id, status),
	}
}

// InFiniteState reports an entity that is terminal and can no longer be modified.
func InFiniteState[S ~string](kind Kind, id string, status S) *Error {
	code := CodeJobInFiniteState
	if kind != KindJob {
		code = CodeStageInFiniteState
	}
	return &Error{
		Code: code,
		Kind: kind,
		ID:   id,
		From: string(status),
		Msg:  fmt.Sprintf("%s %s is %s and can no longer be modified", kindLabel(kind), id, status),
	}
}

// Invalid reports a rejected input field.
func Invalid(field, reason string) *Error {
	return &Error{
		Code: CodeValidation,
		Msg:  fmt.Sprintf("jobnik: invalid %s: %s", field, reason),
	}
}

// Conflict reports a lost race on a guarded update.
func Conflict(kind Kind, id string) *Error {
	return &Error{
		Code: CodeConflict,
		Kind: kind,
		ID:   id,
		Msg:  fmt.Sprintf("jobnik: %s %s was modified concurrently", kindLabel(kind), id),
	}
}

// Conflicting wraps a driver error that signals a serialization failure.
func Conflicting(err error) *Error {
	return &Error{
		Code: CodeConflict,
		Msg:  "jobnik: concurrent modification: " + err.Error(),
		Err:  err,
	}
}

// CodeOf returns the response code for err. Errors not raised by the
// engine map to CodeInternal; nil has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func kindLabel(k Kind) string {
	switch k {
	case KindJob:
		return "job"
	case KindStage:
		return "stage"
	case KindTask:
		return "task"
	}
	return "entity"
}
