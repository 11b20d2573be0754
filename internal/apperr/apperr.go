// Package apperr tags errors with the pipeline stage that produced them so
// callers and operators can tell an API-key problem from a store outage.
package apperr

import "fmt"

// Stage identifies which part of the pipeline failed.
type Stage string

const (
	StageValidation Stage = "validation"
	StageEmbedding  Stage = "embedding"
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
)

// Error wraps a collaborator failure with its stage.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s error", e.Stage)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...interface{}) *Error {
	return &Error{Stage: StageValidation, Err: fmt.Errorf(format, args...)}
}

func Embedding(err error) *Error {
	return &Error{Stage: StageEmbedding, Err: err}
}

func Retrieval(err error) *Error {
	return &Error{Stage: StageRetrieval, Err: err}
}

func Generation(err error) *Error {
	return &Error{Stage: StageGeneration, Err: err}
}

// StageOf reports the stage of err, or "" for untagged errors.
func StageOf(err error) Stage {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Stage
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ""
}
