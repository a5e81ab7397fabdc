package models

import (
	"time"

	"gorm.io/gorm"
)

// GenerationLog records the metadata of one generation request.
// Generated notes themselves are never stored.
type GenerationLog struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	RequestID      string         `gorm:"index" json:"request_id"`
	Variant        string         `gorm:"index;not null" json:"variant"`
	NumPredictions int            `json:"num_predictions"`
	Temperature    float64        `json:"temperature"`
	Tempo          int            `json:"tempo"`
	SeedNotes      int            `json:"seed_notes"`
	NotesEmitted   int            `json:"notes_emitted"`
	NotesDropped   int            `json:"notes_dropped"`
	PitchShift     int            `json:"pitch_shift"`
	MIDIFile       string         `json:"midi_file"`
	DurationMS     int            `json:"duration_ms"`
	Status         string         `gorm:"default:'success';index" json:"status"` // "success", "failed"
	Error          string         `json:"error,omitempty"`
}
