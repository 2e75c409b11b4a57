package prediction

import "fmt"

// ArtifactError reports a missing or corrupt model artifact, an unavailable
// runtime, or a feature dimension mismatch. It is recovered by advancing the
// cascade at load time or by answering with rules at predict time.
type ArtifactError struct {
	Backend string
	Path    string
	Err     error
}

func (e *ArtifactError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s artifact: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("%s artifact %s: %v", e.Backend, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// InferenceError reports a failure during a backend's forward pass.
type InferenceError struct {
	Backend string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference: %v", e.Backend, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
