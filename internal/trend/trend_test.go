package trend

import (
	"errors"
	"testing"

	"opinionbot/internal/domain"
)

func entries(pairs ...[2]float64) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.HistoryEntry{BiasScore: p[0], StrengthScore: p[1]})
	}
	return out
}

func TestSummarizeConservativeMild(t *testing.T) {
	got, err := Summarize(entries([2]float64{-0.5, 0.2}, [2]float64{-0.4, 0.3}), DefaultThresholds())
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if got.BiasLabel != Conservative || got.StrengthLabel != Mild {
		t.Fatalf("got %s/%s, want Conservative/Mild", got.BiasLabel, got.StrengthLabel)
	}
	if got.Count != 2 {
		t.Fatalf("expected count 2, got %d", got.Count)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if _, err := Summarize(nil, DefaultThresholds()); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestSummarizeLabels(t *testing.T) {
	tests := []struct {
		name     string
		history  []domain.HistoryEntry
		th       Thresholds
		bias     BiasLabel
		strength StrengthLabel
	}{
		{"liberal strong", entries([2]float64{0.6, 0.9}, [2]float64{0.4, 0.8}), DefaultThresholds(), Liberal, Strong},
		{"centrist moderate", entries([2]float64{0.1, 0.5}), DefaultThresholds(), Centrist, Moderate},
		{"bias boundary is centrist", entries([2]float64{0.25, 0.4}), Thresholds{Bias: 0.25, Mild: 0.4, Strong: 0.7}, Centrist, Moderate},
		{"strength boundary is moderate", entries([2]float64{0, 0.5}), Thresholds{Bias: 0.2, Mild: 0.4, Strong: 0.5}, Centrist, Moderate},
		{"wider threshold keeps centrist", entries([2]float64{-0.25, 0.1}), Thresholds{Bias: 0.3, Mild: 0.4, Strong: 0.7}, Centrist, Mild},
		{"narrow threshold flips", entries([2]float64{-0.25, 0.1}), DefaultThresholds(), Conservative, Mild},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Summarize(tt.history, tt.th)
			if err != nil {
				t.Fatalf("Summarize error: %v", err)
			}
			if got.BiasLabel != tt.bias || got.StrengthLabel != tt.strength {
				t.Fatalf("got %s/%s, want %s/%s", got.BiasLabel, got.StrengthLabel, tt.bias, tt.strength)
			}
		})
	}
}
