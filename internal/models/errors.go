package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExtraction        = errors.New("document could not be parsed")
	ErrEmptyContent      = errors.New("no text found in document")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmbedding         = errors.New("embedding failed")
	ErrGeneration        = errors.New("answer generation failed")
	ErrStore             = errors.New("store unavailable")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("operation timed out")
)

// pipeline stages named in a PipelineError
const (
	StageInput    = "input"
	StageExtract  = "extract"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StageIndex    = "index"
	StageCatalog  = "catalog"
	StageSearch   = "search"
	StageFAQ      = "faq"
	StageGenerate = "generate"
	StageHistory  = "history"
)

// checked in order, timeouts win over the stage kind
var errorKinds = []error{
	ErrTimeout,
	ErrNotFound,
	ErrUnsupportedFormat,
	ErrInvalidInput,
	ErrEmptyContent,
	ErrExtraction,
	ErrEmbedding,
	ErrGeneration,
	ErrStore,
}

// PipelineError reports which pipeline stage failed and how
type PipelineError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	// the cause usually leads with its kind already
	msg, kind := e.Err.Error(), e.Kind.Error()
	if msg == kind || strings.HasPrefix(msg, kind+": ") {
		return fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, kind, msg)
}

func (e *PipelineError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// StageError tags err with the failing stage. The kind is taken from err
// when it already carries one, otherwise kind is used.
func StageError(stage string, kind, err error) error {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	} else {
		for _, k := range errorKinds {
			if errors.Is(err, k) {
				kind = k
				break
			}
		}
	}
	return &PipelineError{Stage: stage, Kind: kind, Err: err}
}

// Kind returns the error kind of err, or nil when it has none
func Kind(err error) error {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for _, k := range errorKinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
