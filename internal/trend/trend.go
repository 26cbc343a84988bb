package trend

import (
	"errors"

	"opinionbot/internal/domain"
)

var ErrEmptyHistory = errors.New("history is empty")

type BiasLabel string

const (
	Conservative BiasLabel = "Conservative"
	Centrist     BiasLabel = "Centrist"
	Liberal      BiasLabel = "Liberal"
)

type StrengthLabel string

const (
	Mild     StrengthLabel = "Mild"
	Moderate StrengthLabel = "Moderate"
	Strong   StrengthLabel = "Strong"
)

// Thresholds are compared strictly: a mean equal to a threshold falls in
// the middle band.
type Thresholds struct {
	Bias   float64 // mean < -Bias is Conservative, mean > Bias is Liberal
	Mild   float64 // mean strength < Mild is Mild
	Strong float64 // mean strength > Strong is Strong
}

func DefaultThresholds() Thresholds {
	return Thresholds{Bias: 0.2, Mild: 0.4, Strong: 0.7}
}

type Summary struct {
	BiasLabel     BiasLabel
	StrengthLabel StrengthLabel
	MeanBias      float64
	MeanStrength  float64
	Count         int
}

func Summarize(history []domain.HistoryEntry, th Thresholds) (Summary, error) {
	if len(history) == 0 {
		return Summary{}, ErrEmptyHistory
	}
	var sumBias, sumStrength float64
	for _, e := range history {
		sumBias += e.BiasScore
		sumStrength += e.StrengthScore
	}
	n := float64(len(history))
	s := Summary{
		MeanBias:     sumBias / n,
		MeanStrength: sumStrength / n,
		Count:        len(history),
	}

	switch {
	case s.MeanBias < -th.Bias:
		s.BiasLabel = Conservative
	case s.MeanBias > th.Bias:
		s.BiasLabel = Liberal
	default:
		s.BiasLabel = Centrist
	}

	switch {
	case s.MeanStrength < th.Mild:
		s.StrengthLabel = Mild
	case s.MeanStrength > th.Strong:
		s.StrengthLabel = Strong
	default:
		s.StrengthLabel = Moderate
	}
	return s, nil
}
