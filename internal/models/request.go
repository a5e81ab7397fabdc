package models

// GenerationRequest wraps the caller's generation parameters
type GenerationRequest struct {
	StartNotes     []RawNote `json:"start_notes,omitempty"`
	SeedFile       string    `json:"seed_file,omitempty"` // Name of a previously uploaded .mid file
	NumPredictions int       `json:"num_predictions" binding:"required,gt=0"`
	Temperature    float64   `json:"temperature" binding:"required,gt=0,lte=2"`
	Tempo          int       `json:"tempo" binding:"required,gt=0,lte=400"`

	// Optional knobs
	PolyphonyMode string `json:"polyphony_mode,omitempty"` // "chord_tones" or "harmonic_intervals"
	Instrument    string `json:"instrument,omitempty"`
	Seed          *int64 `json:"seed,omitempty"` // Optional seed for reproducibility
}

// GenerateResponse is returned by the generation endpoints
type GenerateResponse struct {
	Message   string `json:"message"`
	MIDIFile  string `json:"midi_file"`
	URL       string `json:"url,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Notes     int    `json:"notes"`
}
