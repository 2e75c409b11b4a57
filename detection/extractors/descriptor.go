package extractors

// AudioDescriptor holds the scalar statistics of one clip. It is built once
// per request and not modified afterwards.
type AudioDescriptor struct {
	Duration         float64   `json:"duration"`
	SampleRate       int       `json:"sample_rate"`
	Channels         int       `json:"channels"`
	Energy           float64   `json:"energy"`
	PeakFrequency    float64   `json:"peak_frequency"`
	SpectralCentroid float64   `json:"spectral_centroid"`
	SpectralRolloff  float64   `json:"spectral_rolloff"`
	ZeroCrossingRate float64   `json:"zero_crossing_rate"`
	MFCC             []float64 `json:"mfccs"`
	OnsetCount       int       `json:"onset_count"`
	OnsetTimes       []float64 `json:"onset_times"`
	Source           string    `json:"audio_path,omitempty"`
}
