// SPDX-License-Identifier: MPL-2.0

package plugin

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/image"
	"github.com/modlink/modlink/pkg/pool"
)

var (
	// ErrNoSink is returned by NewStack when no sink is given.
	ErrNoSink = errors.New("plugin stack requires a sink")

	// ErrStageIsSink is returned by NewStack for a stage that also
	// implements Sink.
	ErrStageIsSink = errors.New("stage must not implement Sink")

	// ErrCategoryChanged is returned when a stage keeps an entry but changes
	// its category.
	ErrCategoryChanged = errors.New("stage changed an entry category")

	// ErrStageFailed is the sentinel wrapped by StageError.
	ErrStageFailed = errors.New("plugin stage failed")
)

type (
	// Stage transforms a pool into a new pool.
	Stage interface {
		Name() string
		Transform(in *pool.Pool) (*pool.Pool, error)
	}

	// Sink is the terminal step of a stack.
	Sink interface {
		Store(p *pool.Pool) (*image.ExecutableImage, error)
	}

	// Stack is an ordered list of stages and a sink.
	Stack struct {
		stages []Stage
		sink   Sink
	}

	// StageError reports the stage that failed.
	StageError struct {
		Stage string
		Cause error
	}

	// CategoryChangeError names the entry whose category a stage changed.
	CategoryChangeError struct {
		Stage string
		Path  string
		From  archive.Category
		To    archive.Category
	}
)

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause)
}

// Unwrap returns both ErrStageFailed and the cause.
func (e *StageError) Unwrap() []error { return []error{ErrStageFailed, e.Cause} }

// Error implements the error interface.
func (e *CategoryChangeError) Error() string {
	return fmt.Sprintf("stage %s changed %s from %s to %s", e.Stage, e.Path, e.From, e.To)
}

// Unwrap returns ErrCategoryChanged for errors.Is() compatibility.
func (e *CategoryChangeError) Unwrap() error { return ErrCategoryChanged }

// NewStack returns a stack running stages in order and then sink.
func NewStack(sink Sink, stages ...Stage) (*Stack, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	for _, s := range stages {
		if s == nil {
			return nil, errors.New("plugin stack: nil stage")
		}
		if _, ok := s.(Sink); ok {
			return nil, fmt.Errorf("%w: %s", ErrStageIsSink, s.Name())
		}
	}
	return &Stack{stages: stages, sink: sink}, nil
}

// Stages returns the stage names in execution order.
func (s *Stack) Stages() []string {
	names := make([]string, len(s.stages))
	for i, st := range s.stages {
		names[i] = st.Name()
	}
	return names
}

// Run applies every stage to p and stores the result through the sink.
func (s *Stack) Run(p *pool.Pool) (*image.ExecutableImage, error) {
	out, err := s.Transform(p)
	if err != nil {
		return nil, err
	}
	return s.sink.Store(out)
}

// Transform applies the stages without storing the result.
func (s *Stack) Transform(p *pool.Pool) (*pool.Pool, error) {
	current := p
	for _, st := range s.stages {
		next, err := st.Transform(current)
		if err != nil {
			return nil, &StageError{Stage: st.Name(), Cause: err}
		}
		if next == nil {
			return nil, &StageError{Stage: st.Name(), Cause: errors.New("stage returned no pool")}
		}
		if err := checkCategories(st.Name(), current, next); err != nil {
			return nil, err
		}
		slog.Debug("stage applied", "stage", st.Name(), "entries", next.Len())
		current = next
	}
	return current, nil
}

func checkCategories(stage string, before, after *pool.Pool) error {
	for _, e := range after.Entries() {
		prev, ok := before.Find(e.Path())
		if ok && prev.Category() != e.Category() {
			return &CategoryChangeError{Stage: stage, Path: e.Path(), From: prev.Category(), To: e.Category()}
		}
	}
	return nil
}
