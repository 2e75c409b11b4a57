package extractors

import "fmt"

// DecodeError reports a waveform that is empty or cannot be interpreted as
// audio. No descriptor can be built, so no fallback is possible.
type DecodeError struct {
	Source string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode failed"
	if e.Source != "" {
		msg = fmt.Sprintf("decode %s failed", e.Source)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ExtractionError reports a failure while deriving features from an
// otherwise valid waveform.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("feature extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
