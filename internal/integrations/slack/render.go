package slackbot

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"opinionbot/internal/config"
	"opinionbot/internal/diagnosis"
	"opinionbot/internal/domain"
	"opinionbot/internal/integrations/llm"
	"opinionbot/internal/session"
	"opinionbot/internal/trend"

	"github.com/slack-go/slack"
)

// Slack rejects section text over 3000 characters.
const maxRawEcho = 2500

// renderError turns a failed action into the message the user sees. Service
// failures get a generic notice, malformed replies are echoed verbatim and
// schema problems name the offending field.
func renderError(err error, cfg config.Config) string {
	var svcErr *llm.ServiceError
	var normErr *diagnosis.NormalizationError
	switch {
	case errors.Is(err, session.ErrSessionBusy):
		return "Still working on your previous request. Please wait for it to finish."
	case errors.Is(err, session.ErrNoDiagnosis):
		return fmt.Sprintf("There is no diagnosis to regenerate yet. Run `%s <text>` first.", cmdDiagnose)
	case errors.Is(err, diagnosis.ErrEmptyInput):
		return diagnoseUsage(cfg)
	case errors.Is(err, diagnosis.ErrInputTooLong):
		return fmt.Sprintf("That post is too long. Please keep it to %d characters.", cfg.MaxInputLength)
	case errors.As(err, &svcErr):
		return serviceErrorMessage(svcErr)
	case errors.As(err, &normErr) && normErr.Kind == diagnosis.MalformedPayload:
		return "The model did not reply with valid JSON. This is what it sent:\n```" + truncateRunes(normErr.RawText, maxRawEcho) + "```"
	case errors.As(err, &normErr) && normErr.Kind == diagnosis.SchemaViolation:
		if normErr.Value == "" {
			return fmt.Sprintf("The model's reply was missing the `%s` field. Please try again.", normErr.Field)
		}
		return fmt.Sprintf("The model's reply had an invalid `%s` value (`%s`). Please try again.", normErr.Field, truncateRunes(normErr.Value, 200))
	case errors.Is(err, trend.ErrEmptyHistory):
		return "No diagnoses yet, so there is no trend to show."
	default:
		return "Something went wrong. Please try again."
	}
}

func serviceErrorMessage(err *llm.ServiceError) string {
	switch err.Kind {
	case llm.KindAuth:
		return "The language model service rejected the bot's credentials. Please tell the bot administrator."
	case llm.KindQuota:
		return "The language model service is over its usage limit right now. Please try again later."
	case llm.KindNetwork:
		return "Could not reach the language model service. Please try again in a moment."
	default:
		return "The language model service returned an error. Please try again."
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

func formatPoint(bias, strength float64) string {
	return fmt.Sprintf("bias %+.2f, strength %.2f", bias, strength)
}

func diagnosisFallback(rec domain.DiagnosisRecord) string {
	return "Diagnosis: " + formatPoint(rec.BiasScore, rec.StrengthScore)
}

func opinionFallback(mode domain.Mode, op domain.Opinion) string {
	return fmt.Sprintf("%s: %s", opinionTitle(mode), op.Content)
}

func opinionTitle(mode domain.Mode) string {
	if mode == domain.ModeRegenOpposite {
		return "Opposite opinion"
	}
	return "Similar opinion"
}

func opinionLine(title string, op *domain.Opinion) string {
	if op == nil {
		return fmt.Sprintf("*%s:* _none suggested_", title)
	}
	return fmt.Sprintf("*%s* (%s)\n>%s", title, formatPoint(op.BiasScore, op.StrengthScore), op.Content)
}

func textSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func regenButtons() *slack.ActionBlock {
	similar := slack.NewButtonBlockElement(actionRegenSimilar, "similar",
		slack.NewTextBlockObject(slack.PlainTextType, "New similar opinion", false, false))
	opposite := slack.NewButtonBlockElement(actionRegenOpposite, "opposite",
		slack.NewTextBlockObject(slack.PlainTextType, "New opposite opinion", false, false))
	return slack.NewActionBlock("diagnosis_regen", similar, opposite)
}

func diagnosisBlocks(res session.DiagnoseResult, cfg config.Config) []slack.Block {
	rec := res.Record
	header := fmt.Sprintf("*Diagnosis*%s\n%s  (%s -1.0 … +1.0 %s)",
		genreSuffix(res.Entry.Genre), formatPoint(rec.BiasScore, rec.StrengthScore), cfg.NegativePole, cfg.PositivePole)
	blocks := []slack.Block{textSection(header)}
	if strings.TrimSpace(rec.Comment) != "" {
		blocks = append(blocks, textSection(">"+rec.Comment))
	}
	blocks = append(blocks,
		textSection(opinionLine("Similar opinion", rec.SimilarOpinion)),
		textSection(opinionLine("Opposite opinion", rec.OppositeOpinion)),
		slack.NewContextBlock("diagnosis_reference", slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("Closest reference: *%s* [%s] (distance %.2f)  ·  Farthest: *%s* [%s] (distance %.2f)",
				res.Comparison.Closest.Label, formatPoint(res.Comparison.Closest.BiasScore, res.Comparison.Closest.StrengthScore),
				res.Comparison.ClosestDistance,
				res.Comparison.Farthest.Label, formatPoint(res.Comparison.Farthest.BiasScore, res.Comparison.Farthest.StrengthScore),
				res.Comparison.FarthestDistance),
			false, false)),
		regenButtons(),
	)
	return blocks
}

func regenerateBlocks(res session.RegenerateResult) []slack.Block {
	var op *domain.Opinion
	if res.Mode == domain.ModeRegenOpposite {
		op = res.Record.OppositeOpinion
	} else {
		op = res.Record.SimilarOpinion
	}
	return []slack.Block{
		textSection(opinionLine("New "+strings.ToLower(opinionTitle(res.Mode)), op)),
		regenButtons(),
	}
}

func renderDebug(st session.State) string {
	if st.LastResponse == "" {
		return "Nothing has been sent to the model in this session yet."
	}
	return fmt.Sprintf("*Last model call* (prompt %d characters, last input %q)\n```%s```",
		utf8.RuneCountInString(st.LastPrompt), truncateRunes(st.LastInput, 80), truncateRunes(st.LastResponse, maxRawEcho))
}

func genreSuffix(genre string) string {
	if genre == "" {
		return ""
	}
	return " · " + genre
}

func renderTrend(s trend.Summary, cfg config.Config) string {
	return fmt.Sprintf("*Your trend over %d diagnoses*\nLeaning: *%s* (mean bias %+.2f, %s ↔ %s)\nIntensity: *%s* (mean strength %.2f)",
		s.Count, s.BiasLabel, s.MeanBias, cfg.NegativePole, cfg.PositivePole, s.StrengthLabel, s.MeanStrength)
}
