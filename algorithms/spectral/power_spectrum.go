package spectral

import (
	"math"
)

// DecibelParams controls conversion of a power matrix to decibels.
type DecibelParams struct {
	// Ref is the reference power. RefMax uses the matrix maximum instead.
	Ref    float64
	RefMax bool
	// Amin floors both the input and the reference before the logarithm.
	Amin float64
	// TopDB clips the output to (max - TopDB). Zero disables clipping.
	TopDB float64
}

// DefaultDecibelParams returns ref 1, amin 1e-10, top_db 80.
func DefaultDecibelParams() DecibelParams {
	return DecibelParams{Ref: 1.0, Amin: 1e-10, TopDB: 80.0}
}

// PowerToDB converts a power matrix to decibels. TopDB clipping is applied
// over the whole matrix, not per frame.
func PowerToDB(power [][]float64, params DecibelParams) [][]float64 {
	amin := params.Amin
	if amin <= 0 {
		amin = 1e-10
	}

	ref := params.Ref
	if params.RefMax {
		ref = 0
		for _, row := range power {
			for _, v := range row {
				ref = math.Max(ref, v)
			}
		}
	}
	refDB := 10.0 * math.Log10(math.Max(amin, math.Abs(ref)))

	peak := math.Inf(-1)
	db := make([][]float64, len(power))
	for t, row := range power {
		db[t] = make([]float64, len(row))
		for f, v := range row {
			val := 10.0*math.Log10(math.Max(amin, v)) - refDB
			db[t][f] = val
			peak = math.Max(peak, val)
		}
	}

	if params.TopDB > 0 && !math.IsInf(peak, -1) {
		floor := peak - params.TopDB
		for _, row := range db {
			for f, v := range row {
				if v < floor {
					row[f] = floor
				}
			}
		}
	}

	return db
}
