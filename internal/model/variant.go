package model

import (
	"fmt"
	"strings"
)

// Field names one feature of a note as seen by a sequence model
type Field string

const (
	FieldPitch     Field = "pitch"
	FieldStep      Field = "step"
	FieldDuration  Field = "duration"
	FieldInterval  Field = "interval"
	FieldVelocity  Field = "velocity"
	FieldPolyphony Field = "polyphony"
)

// Normalization divides a raw field value before it enters a window
var Normalization = map[Field]float64{
	FieldPitch:     128,
	FieldStep:      1,
	FieldDuration:  1,
	FieldInterval:  1,
	FieldVelocity:  128,
	FieldPolyphony: 1,
}

// PitchMode says how a variant produces pitch
type PitchMode int

const (
	// PitchAbsolute samples a pitch class from the pitch logits
	PitchAbsolute PitchMode = iota
	// PitchInterval adds the predicted interval to the previous pitch
	PitchInterval
)

// DurationMode says how a variant represents duration
type DurationMode int

const (
	// DurationSeconds predicts duration directly in seconds
	DurationSeconds DurationMode = iota
	// DurationCategorical predicts a duration label class
	DurationCategorical
)

// Variant describes the input shape and output semantics of one trained model.
// A Variant is fixed for the lifetime of the process.
type Variant struct {
	Name         string
	ModelName    string // Name used on the model server
	WindowLength int
	Features     []Field
	Pitch        PitchMode
	Duration     DurationMode
	Polyphonic   bool // Model predicts a polyphony class per step
}

// Index returns the position of f in the feature vector, or -1
func (v Variant) Index(f Field) int {
	for i, field := range v.Features {
		if field == f {
			return i
		}
	}
	return -1
}

// Has reports whether the variant carries f
func (v Variant) Has(f Field) bool {
	return v.Index(f) >= 0
}

// Categorical reports whether f is predicted as a class distribution
func (v Variant) Categorical(f Field) bool {
	switch f {
	case FieldPitch:
		return true
	case FieldDuration:
		return v.Duration == DurationCategorical
	case FieldPolyphony:
		return v.Polyphonic
	default:
		return false
	}
}

// Built-in variants, one per trained model generation
var (
	VariantPolyphonic = Variant{
		Name:         "v0",
		ModelName:    "lstm_polyphonic",
		WindowLength: 25,
		Features:     []Field{FieldPitch, FieldStep, FieldDuration, FieldInterval, FieldVelocity, FieldPolyphony},
		Pitch:        PitchInterval,
		Duration:     DurationSeconds,
		Polyphonic:   true,
	}
	VariantContinuous = Variant{
		Name:         "v1",
		ModelName:    "lstm_attention",
		WindowLength: 50,
		Features:     []Field{FieldPitch, FieldStep, FieldDuration},
		Pitch:        PitchAbsolute,
		Duration:     DurationSeconds,
	}
	VariantCategorical = Variant{
		Name:         "v2",
		ModelName:    "lstm_attention_categorical",
		WindowLength: 50,
		Features:     []Field{FieldPitch, FieldStep, FieldDuration},
		Pitch:        PitchAbsolute,
		Duration:     DurationCategorical,
	}
)

// Variants lists the built-in variants in route order
func Variants() []Variant {
	return []Variant{VariantPolyphonic, VariantContinuous, VariantCategorical}
}

// LookupVariant finds a built-in variant by name
func LookupVariant(name string) (Variant, error) {
	for _, v := range Variants() {
		if strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("unknown model variant: %s (allowed: v0, v1, v2)", name)
}
