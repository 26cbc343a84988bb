package reference

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"opinionbot/internal/domain"

	"gopkg.in/yaml.v3"
)

var ErrEmptyReferenceSet = errors.New("reference set is empty")

type Comparison struct {
	Closest          domain.ReferencePoint
	Farthest         domain.ReferencePoint
	ClosestDistance  float64
	FarthestDistance float64
}

var defaultPoints = []domain.ReferencePoint{
	{Label: "Constitutional revision is necessary", BiasScore: -0.6, StrengthScore: 0.7},
	{Label: "Married couples should be allowed separate surnames", BiasScore: 0.5, StrengthScore: 0.6},
	{Label: "Defense spending should be increased further", BiasScore: -0.8, StrengthScore: 0.9},
	{Label: "Same-sex marriage should be legally recognized", BiasScore: 0.8, StrengthScore: 0.7},
}

// DefaultPoints returns a copy of the built-in sample opinions.
func DefaultPoints() []domain.ReferencePoint {
	out := make([]domain.ReferencePoint, len(defaultPoints))
	copy(out, defaultPoints)
	return out
}

type pointsFile struct {
	Points []domain.ReferencePoint `yaml:"reference_points"`
}

func LoadPoints(path string) ([]domain.ReferencePoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference points: %w", err)
	}
	var f pointsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reference points yaml: %w", err)
	}
	if len(f.Points) == 0 {
		return nil, ErrEmptyReferenceSet
	}
	for i, p := range f.Points {
		if strings.TrimSpace(p.Label) == "" {
			return nil, fmt.Errorf("reference point %d: label is empty", i)
		}
		if err := domain.ValidateScores(p.BiasScore, p.StrengthScore); err != nil {
			return nil, fmt.Errorf("reference point %q: %w", p.Label, err)
		}
	}
	return f.Points, nil
}

func Distance(aBias, aStrength, bBias, bStrength float64) float64 {
	return math.Hypot(aBias-bBias, aStrength-bStrength)
}

// FindClosestAndFarthest scans refs in order; ties keep the earlier point.
func FindClosestAndFarthest(bias, strength float64, refs []domain.ReferencePoint) (Comparison, error) {
	if len(refs) == 0 {
		return Comparison{}, ErrEmptyReferenceSet
	}
	if err := domain.ValidateScores(bias, strength); err != nil {
		return Comparison{}, err
	}

	first := Distance(bias, strength, refs[0].BiasScore, refs[0].StrengthScore)
	out := Comparison{
		Closest:          refs[0],
		Farthest:         refs[0],
		ClosestDistance:  first,
		FarthestDistance: first,
	}
	for _, ref := range refs[1:] {
		d := Distance(bias, strength, ref.BiasScore, ref.StrengthScore)
		if d < out.ClosestDistance {
			out.Closest, out.ClosestDistance = ref, d
		}
		if d > out.FarthestDistance {
			out.Farthest, out.FarthestDistance = ref, d
		}
	}
	return out, nil
}
