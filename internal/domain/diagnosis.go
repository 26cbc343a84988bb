package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinBiasScore     = -1.0
	MaxBiasScore     = 1.0
	MinStrengthScore = 0.0
	MaxStrengthScore = 1.0
)

type Mode int

const (
	ModeFull Mode = iota
	ModeRegenSimilar
	ModeRegenOpposite
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeRegenSimilar:
		return "regen_similar"
	case ModeRegenOpposite:
		return "regen_opposite"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// OpinionKey is the response key a regenerate mode asks for.
func (m Mode) OpinionKey() string {
	switch m {
	case ModeRegenSimilar:
		return "similarOpinion"
	case ModeRegenOpposite:
		return "oppositeOpinion"
	default:
		return ""
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return ModeFull, nil
	case "regen_similar", "similar":
		return ModeRegenSimilar, nil
	case "regen_opposite", "opposite":
		return ModeRegenOpposite, nil
	}
	return ModeFull, fmt.Errorf("unknown mode %q", s)
}

type Opinion struct {
	Content       string
	BiasScore     float64
	StrengthScore float64
}

type DiagnosisRecord struct {
	BiasScore       float64
	StrengthScore   float64
	Comment         string
	SimilarOpinion  *Opinion // optional
	OppositeOpinion *Opinion // optional
}

// WithOpinion returns a copy of r with the opinion field selected by mode
// replaced. Scores and comment are carried over untouched.
func (r DiagnosisRecord) WithOpinion(mode Mode, op Opinion) (DiagnosisRecord, error) {
	out := r
	switch mode {
	case ModeRegenSimilar:
		out.SimilarOpinion = &op
	case ModeRegenOpposite:
		out.OppositeOpinion = &op
	default:
		return r, fmt.Errorf("mode %s does not replace an opinion", mode)
	}
	return out, nil
}

type HistoryEntry struct {
	ID            int64
	SessionID     string
	Content       string // opinion text as entered, optional
	Genre         string
	BiasScore     float64
	StrengthScore float64
	Comment       string // optional
	CreatedAt     time.Time
}

type ReferencePoint struct {
	Label         string  `yaml:"label"`
	BiasScore     float64 `yaml:"bias_score"`
	StrengthScore float64 `yaml:"strength_score"`
}

// RangeError reports a bias or strength value outside its closed range.
type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %g out of range [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

func ValidateBias(field string, v float64) error {
	if !(v >= MinBiasScore && v <= MaxBiasScore) {
		return &RangeError{Field: field, Value: v, Min: MinBiasScore, Max: MaxBiasScore}
	}
	return nil
}

func ValidateStrength(field string, v float64) error {
	if !(v >= MinStrengthScore && v <= MaxStrengthScore) {
		return &RangeError{Field: field, Value: v, Min: MinStrengthScore, Max: MaxStrengthScore}
	}
	return nil
}

func ValidateScores(bias, strength float64) error {
	if err := ValidateBias("biasScore", bias); err != nil {
		return err
	}
	return ValidateStrength("strengthScore", strength)
}
