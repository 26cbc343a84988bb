package diagnosis

import (
	"errors"
	"strings"
	"testing"

	"opinionbot/internal/domain"
)

func TestBuildPromptFullRequestsFiveFields(t *testing.T) {
	prompt, err := BuildPrompt("Defense spending should be increased", "Politics", domain.ModeFull, DefaultPromptOptions())
	if err != nil {
		t.Fatalf("BuildPrompt error: %v", err)
	}
	for _, key := range []string{`"biasScore"`, `"strengthScore"`, `"comment"`, `"similarOpinion"`, `"oppositeOpinion"`} {
		if !strings.Contains(prompt, key) {
			t.Fatalf("expected prompt to request %s, prompt=%s", key, prompt)
		}
	}
	if strings.Count(prompt, `"content"`) != 2 {
		t.Fatalf("expected nested content shape for both opinions, prompt=%s", prompt)
	}
	for _, want := range []string{"-1.0 to 1.0", "0.0 to 1.0", "Topic: Politics", "Post: Defense spending should be increased", "about 200 characters"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q, prompt=%s", want, prompt)
		}
	}
}

func TestBuildPromptRegenRequestsOneField(t *testing.T) {
	tests := []struct {
		mode    domain.Mode
		want    string
		notWant string
	}{
		{domain.ModeRegenSimilar, `"similarOpinion"`, `"oppositeOpinion"`},
		{domain.ModeRegenOpposite, `"oppositeOpinion"`, `"similarOpinion"`},
	}
	for _, tt := range tests {
		prompt, err := BuildPrompt("Same-sex marriage should be legal", "", tt.mode, DefaultPromptOptions())
		if err != nil {
			t.Fatalf("BuildPrompt(%s) error: %v", tt.mode, err)
		}
		if !strings.Contains(prompt, tt.want) {
			t.Fatalf("expected %s in %s prompt", tt.want, tt.mode)
		}
		if strings.Contains(prompt, tt.notWant) || strings.Contains(prompt, `"comment"`) {
			t.Fatalf("regen prompt must only request %s, prompt=%s", tt.want, prompt)
		}
		if strings.Contains(prompt, "Topic:") {
			t.Fatalf("expected no topic line without genre")
		}
		if strings.Count(prompt, `"content"`) != 1 {
			t.Fatalf("expected exactly one opinion shape, prompt=%s", prompt)
		}
	}
}

func TestBuildPromptInputValidation(t *testing.T) {
	opts := PromptOptions{MaxInputLength: 5}

	if _, err := BuildPrompt("  \n ", "", domain.ModeFull, opts); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := BuildPrompt("abcdef", "", domain.ModeFull, opts); !errors.Is(err, ErrInputTooLong) {
		t.Fatalf("expected ErrInputTooLong, got %v", err)
	}
	// Five characters, fifteen bytes.
	if _, err := BuildPrompt("憲法改正だ", "", domain.ModeFull, opts); err != nil {
		t.Fatalf("expected multibyte input within limit to pass, got %v", err)
	}
	if _, err := BuildPrompt("x", "", domain.Mode(42), opts); err == nil {
		t.Fatal("expected unsupported mode to fail")
	}
}

func TestCleanInputNormalizesNFC(t *testing.T) {
	// "e" + combining acute accent composes to a single character.
	got, err := CleanInput(" cafe\u0301 ", 4)
	if err != nil {
		t.Fatalf("CleanInput error: %v", err)
	}
	if got != "caf\u00e9" {
		t.Fatalf("expected NFC form, got %q", got)
	}
}

func TestBuildPromptResponseLanguageAndPoles(t *testing.T) {
	opts := DefaultPromptOptions()
	opts.ResponseLanguage = "Japanese"
	opts.NegativePole = "right"
	opts.PositivePole = "left"
	prompt, err := BuildPrompt("text", "", domain.ModeFull, opts)
	if err != nil {
		t.Fatalf("BuildPrompt error: %v", err)
	}
	if !strings.Contains(prompt, "in Japanese") {
		t.Fatalf("expected language instruction, prompt=%s", prompt)
	}
	if !strings.Contains(prompt, "-1.0 = right, +1.0 = left") {
		t.Fatalf("expected custom pole labels, prompt=%s", prompt)
	}
}
