package backends

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Scaler standardises feature vectors as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `msgpack:"mean"`
	Scale []float64 `msgpack:"scale"`
}

// DecodeScaler parses a msgpack scaler export. Zero or missing scale
// entries are treated as 1.
func DecodeScaler(data []byte) (*Scaler, error) {
	var s Scaler
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode scaler: %w", err)
	}

	if len(s.Mean) == 0 {
		return nil, errors.New("scaler has no mean")
	}
	if len(s.Scale) != 0 && len(s.Scale) != len(s.Mean) {
		return nil, fmt.Errorf("scaler mean has %d values, scale has %d", len(s.Mean), len(s.Scale))
	}

	scale := make([]float64, len(s.Mean))
	for i := range scale {
		scale[i] = 1
		if i < len(s.Scale) && s.Scale[i] != 0 {
			scale[i] = s.Scale[i]
		}
	}
	s.Scale = scale

	return &s, nil
}

// Dim is the vector length the scaler accepts.
func (s *Scaler) Dim() int { return len(s.Mean) }

// Transform returns a standardised copy of x.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(x))
	}

	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}
