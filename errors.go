package jobnik

import "github.com/MapColonies/jobnik/pkg/core"

// Code is the machine-readable outcome of an operation.
type Code = core.Code

// Error is the typed rejection every operation returns.
type Error = core.Error

// Error codes
const (
	CodeJobNotFound                  = core.CodeJobNotFound
	CodeStageNotFound                = core.CodeStageNotFound
	CodeTaskNotFound                 = core.CodeTaskNotFound
	CodeJobNotInFiniteState          = core.CodeJobNotInFiniteState
	CodeJobInFiniteState             = core.CodeJobInFiniteState
	CodeStageInFiniteState           = core.CodeStageInFiniteState
	CodeIllegalJobStatusTransition   = core.CodeIllegalJobStatusTransition
	CodeIllegalStageStatusTransition = core.CodeIllegalStageStatusTransition
	CodeIllegalTaskStatusTransition  = core.CodeIllegalTaskStatusTransition
	CodeValidation                   = core.CodeValidation
	CodeConflict                     = core.CodeConflict
	CodeInternal                     = core.CodeInternal
)

// Success codes
const (
	CodeJobModifiedSuccessfully   = core.CodeJobModifiedSuccessfully
	CodeJobDeletedSuccessfully    = core.CodeJobDeletedSuccessfully
	CodeStageModifiedSuccessfully = core.CodeStageModifiedSuccessfully
	CodeTaskModifiedSuccessfully  = core.CodeTaskModifiedSuccessfully
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrJobNotFound            = core.ErrJobNotFound
	ErrStageNotFound          = core.ErrStageNotFound
	ErrTaskNotFound           = core.ErrTaskNotFound
	ErrJobNotInFiniteState    = core.ErrJobNotInFiniteState
	ErrJobInFiniteState       = core.ErrJobInFiniteState
	ErrStageInFiniteState     = core.ErrStageInFiniteState
	ErrIllegalJobTransition   = core.ErrIllegalJobTransition
	ErrIllegalStageTransition = core.ErrIllegalStageTransition
	ErrIllegalTaskTransition  = core.ErrIllegalTaskTransition
	ErrValidation             = core.ErrValidation
	ErrConflict               = core.ErrConflict
)

// CodeOf returns the code carried by err, CodeInternal for foreign errors.
func CodeOf(err error) Code {
	return core.CodeOf(err)
}
