package diagnosis

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"opinionbot/internal/domain"

	"golang.org/x/text/unicode/norm"
)

const (
	DefaultMaxInputLength = 200
	DefaultCommentLength  = 200
)

var (
	ErrEmptyInput   = errors.New("input text is empty")
	ErrInputTooLong = errors.New("input text is too long")
)

type PromptOptions struct {
	MaxInputLength   int
	CommentLength    int
	NegativePole     string
	PositivePole     string
	ResponseLanguage string
}

func DefaultPromptOptions() PromptOptions {
	return PromptOptions{
		MaxInputLength: DefaultMaxInputLength,
		CommentLength:  DefaultCommentLength,
		NegativePole:   "conservative",
		PositivePole:   "liberal",
	}
}

func (o PromptOptions) withDefaults() PromptOptions {
	d := DefaultPromptOptions()
	if o.MaxInputLength <= 0 {
		o.MaxInputLength = d.MaxInputLength
	}
	if o.CommentLength <= 0 {
		o.CommentLength = d.CommentLength
	}
	if strings.TrimSpace(o.NegativePole) == "" {
		o.NegativePole = d.NegativePole
	}
	if strings.TrimSpace(o.PositivePole) == "" {
		o.PositivePole = d.PositivePole
	}
	return o
}

// CleanInput NFC-normalizes and trims text, then enforces the length limit
// counted in characters rather than bytes.
func CleanInput(text string, maxLen int) (string, error) {
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return "", ErrEmptyInput
	}
	if maxLen > 0 {
		if n := utf8.RuneCountInString(text); n > maxLen {
			return "", fmt.Errorf("%w: %d characters, limit is %d", ErrInputTooLong, n, maxLen)
		}
	}
	return text, nil
}

func BuildPrompt(text, genre string, mode domain.Mode, opts PromptOptions) (string, error) {
	opts = opts.withDefaults()
	text, err := CleanInput(text, opts.MaxInputLength)
	if err != nil {
		return "", err
	}
	genre = strings.TrimSpace(genre)

	switch mode {
	case domain.ModeFull:
		return buildFullPrompt(text, genre, opts), nil
	case domain.ModeRegenSimilar, domain.ModeRegenOpposite:
		return buildRegenPrompt(text, genre, mode, opts), nil
	default:
		return "", fmt.Errorf("build prompt: unsupported mode %s", mode)
	}
}

func buildFullPrompt(text, genre string, opts PromptOptions) string {
	var b strings.Builder
	b.WriteString("Analyze the political leaning of the following social media post or opinion.\n")
	writeTopic(&b, genre)
	b.WriteString("Respond with a single JSON object only (no markdown, no extra text) with exactly these five keys:\n")
	fmt.Fprintf(&b, `{
  "biasScore": number from -1.0 to 1.0 (-1.0 = %s, +1.0 = %s),
  "strengthScore": number from 0.0 to 1.0 (0.0 = mild, 1.0 = strong),
  "comment": "neutral commentary of about %d characters that explains the reasoning",
  "similarOpinion": {"content": "a short opinion with a similar leaning", "biasScore": number from -1.0 to 1.0, "strengthScore": number from 0.0 to 1.0},
  "oppositeOpinion": {"content": "a short opinion with the opposite leaning", "biasScore": number from -1.0 to 1.0, "strengthScore": number from 0.0 to 1.0}
}
`, opts.NegativePole, opts.PositivePole, opts.CommentLength)
	writeLanguage(&b, opts, "comment and content")
	fmt.Fprintf(&b, "\nPost: %s\n", text)
	return b.String()
}

func buildRegenPrompt(text, genre string, mode domain.Mode, opts PromptOptions) string {
	key := mode.OpinionKey()
	kind := "a similar"
	if mode == domain.ModeRegenOpposite {
		kind = "the opposite"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write one new short opinion with %s political leaning to the following post.\n", kind)
	writeTopic(&b, genre)
	fmt.Fprintf(&b, "Respond with a single JSON object only (no markdown, no extra text) containing only the key %q:\n", key)
	fmt.Fprintf(&b, `{
  %q: {"content": "the opinion text", "biasScore": number from -1.0 to 1.0 (-1.0 = %s, +1.0 = %s), "strengthScore": number from 0.0 to 1.0}
}
`, key, opts.NegativePole, opts.PositivePole)
	writeLanguage(&b, opts, "content")
	fmt.Fprintf(&b, "\nPost: %s\n", text)
	return b.String()
}

func writeTopic(b *strings.Builder, genre string) {
	if genre != "" {
		fmt.Fprintf(b, "Topic: %s\n", genre)
	}
}

func writeLanguage(b *strings.Builder, opts PromptOptions, fields string) {
	if lang := strings.TrimSpace(opts.ResponseLanguage); lang != "" {
		fmt.Fprintf(b, "Write %s in %s. Keep the JSON keys in English.\n", fields, lang)
	}
}
