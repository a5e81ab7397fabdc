package generation

import "errors"

// Configuration errors are rejected before a window is built.
var (
	ErrInvalidTemperature     = errors.New("temperature must be in (0, 2]")
	ErrMissingTempo           = errors.New("tempo is required to compute absolute durations")
	ErrInvalidPredictionCount = errors.New("num_predictions must be a positive integer")
)

// Decoding errors mean the vocabulary and the model disagree.
var (
	ErrUnknownDurationLabel = errors.New("unknown duration label")
	ErrInvalidPolyphonyMode = errors.New("invalid polyphony mode (allowed: chord_tones, harmonic_intervals)")
	ErrEmptyPrediction      = errors.New("model returned no value for a required field")
)

// IsConfigError reports whether err is a request configuration error
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidTemperature) ||
		errors.Is(err, ErrMissingTempo) ||
		errors.Is(err, ErrInvalidPredictionCount) ||
		errors.Is(err, ErrInvalidPolyphonyMode)
}
