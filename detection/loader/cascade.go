package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-gunshot/detection/backends"
)

// Attempt loads one tier of the cascade.
type Attempt struct {
	Kind backends.Kind
	// Path is the artifact reported when the attempt fails.
	Path string
	Load func(ctx context.Context) (backends.Backend, error)
}

// AttemptError records a tier that failed to load.
type AttemptError struct {
	Kind backends.Kind
	Path string
	Err  error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// ErrNoBackend is returned by FirstSuccess when every attempt failed.
var ErrNoBackend = errors.New("no backend could be loaded")

// FirstSuccess runs attempts in order and returns the first backend that
// loads, together with the failures of the attempts before it.
func FirstSuccess(ctx context.Context, attempts ...Attempt) (backends.Backend, []AttemptError, error) {
	var failures []AttemptError
	for _, attempt := range attempts {
		backend, err := attempt.Load(ctx)
		if err == nil && backend != nil {
			return backend, failures, nil
		}
		if err == nil {
			err = errors.New("loader returned no backend")
		}
		failures = append(failures, AttemptError{Kind: attempt.Kind, Path: attempt.Path, Err: err})
	}
	return nil, failures, ErrNoBackend
}

// joinFailures renders failures as one diagnostic line.
func joinFailures(failures []AttemptError) string {
	parts := make([]string, len(failures))
	for i, f := range failures {
		parts[i] = f.Error()
	}
	return strings.Join(parts, "; ")
}
