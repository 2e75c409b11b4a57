package common

// PadCenter zero-pads pad samples on each side of signal so frame t is
// centred on sample t*hop.
func PadCenter(signal []float64, pad int) []float64 {
	if pad <= 0 {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out
	}
	out := make([]float64, len(signal)+2*pad)
	copy(out[pad:], signal)
	return out
}

// FrameCount returns the number of full frames of frameSize at hopSize.
func FrameCount(length, frameSize, hopSize int) int {
	if length < frameSize || frameSize <= 0 || hopSize <= 0 {
		return 0
	}
	return (length-frameSize)/hopSize + 1
}

// CenteredFrames slices signal into centred, zero-padded frames. The
// returned frames alias the padded copy, never the caller's slice.
func CenteredFrames(signal []float64, frameSize, hopSize int) [][]float64 {
	padded := PadCenter(signal, frameSize/2)
	n := FrameCount(len(padded), frameSize, hopSize)
	frames := make([][]float64, n)
	for i := range n {
		start := i * hopSize
		frames[i] = padded[start : start+frameSize]
	}
	return frames
}

// PadEdge pads pad samples on each side by repeating the boundary samples.
func PadEdge(signal []float64, pad int) []float64 {
	if pad <= 0 || len(signal) == 0 {
		return PadCenter(signal, pad)
	}
	out := make([]float64, len(signal)+2*pad)
	copy(out[pad:], signal)
	first, last := signal[0], signal[len(signal)-1]
	for i := range pad {
		out[i] = first
		out[len(out)-1-i] = last
	}
	return out
}
