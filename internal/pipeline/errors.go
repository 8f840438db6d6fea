package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a pipeline stage for failure attribution.
type Stage string

const (
	StageClassify Stage = "classify"
	StageCache    Stage = "cache"
	StageRetrieve Stage = "retrieve"
	StageValidate Stage = "validate"
	StageScore    Stage = "score"
	StageDecide   Stage = "decide"
	StageGenerate Stage = "generate"
)

var (
	ErrClassificationFailure = errors.New("intent classification failed")
	ErrRetrievalFailure      = errors.New("document retrieval failed")
	ErrCacheUnavailable      = errors.New("response cache unavailable")
	ErrGenerationFailure     = errors.New("answer generation failed")
	ErrUnknownClient         = errors.New("unknown client")
)

// StageError attributes a failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
