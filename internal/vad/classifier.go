package vad

import (
	"fmt"
	"math"

	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/audio"
)

// Classifier returns the probability that a window of mono samples is speech
type Classifier interface {
	Probability(window []float32, sampleRate int) (float64, error)
}

// EnergyClassifier scores a window by its RMS level. Levels at or below
// FloorDB score 0, levels at or above CeilingDB score 1, linear in between.
// With the defaults a threshold of 0.5 corresponds to an RMS of 0.01.
type EnergyClassifier struct {
	FloorDB   float64
	CeilingDB float64
}

// NewEnergyClassifier returns a classifier spanning -60 to -20 dBFS
func NewEnergyClassifier() *EnergyClassifier {
	return &EnergyClassifier{FloorDB: -60, CeilingDB: -20}
}

// Probability implements Classifier
func (c *EnergyClassifier) Probability(window []float32, _ int) (float64, error) {
	if c.CeilingDB <= c.FloorDB {
		return 0, fmt.Errorf("energy classifier ceiling %.1f dB is not above floor %.1f dB", c.CeilingDB, c.FloorDB)
	}

	rms := audio.RMS(window)
	if rms <= 0 {
		return 0, nil
	}
	db := 20 * math.Log10(rms)

	p := (db - c.FloorDB) / (c.CeilingDB - c.FloorDB)
	return math.Max(0, math.Min(1, p)), nil
}

// NewClassifier loads the classifier named in configuration
func NewClassifier(name string) (Classifier, error) {
	switch name {
	case "", "energy":
		return NewEnergyClassifier(), nil
	default:
		return nil, apperr.VADModel("load classifier", fmt.Errorf("unknown classifier %q", name))
	}
}
