package slackbot

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"opinionbot/internal/config"
	"opinionbot/internal/domain"
	"opinionbot/internal/export"

	"github.com/slack-go/slack"
)

func (b *Bot) handleDiagnose(cmd slack.SlashCommand) {
	genre, body := parseDiagnoseArgs(cmd.Text, b.cfg)
	if body == "" {
		b.postEphemeral(cmd, diagnoseUsage(b.cfg))
		return
	}
	key := sessionKey(cmd.UserID, cmd.ChannelID)

	b.postEphemeral(cmd, "Diagnosing...")
	res, err := b.mgr.Diagnose(b.ctx, key, body, genre)
	if err != nil {
		log.Printf("diagnose user=%s channel=%s error: %v", cmd.UserID, cmd.ChannelID, err)
		b.postEphemeral(cmd, renderError(err, b.cfg))
		return
	}
	b.postBlocks(cmd.ChannelID, cmd.UserID, diagnosisFallback(res.Record), diagnosisBlocks(res, b.cfg))
}

func (b *Bot) handleRegenerate(channelID, userID, actionID string) {
	mode := domain.ModeRegenSimilar
	if actionID == actionRegenOpposite {
		mode = domain.ModeRegenOpposite
	}
	key := sessionKey(userID, channelID)

	res, err := b.mgr.Regenerate(b.ctx, key, mode)
	if err != nil {
		log.Printf("regenerate user=%s channel=%s mode=%s error: %v", userID, channelID, mode, err)
		b.postEphemeralTo(channelID, userID, renderError(err, b.cfg))
		return
	}
	b.postBlocks(channelID, userID, opinionFallback(mode, res.Opinion), regenerateBlocks(res))
}

func (b *Bot) handleHistory(cmd slack.SlashCommand) {
	key := sessionKey(cmd.UserID, cmd.ChannelID)
	count, err := b.mgr.HistoryCount(key)
	if err != nil {
		log.Printf("history user=%s error: %v", cmd.UserID, err)
		b.postEphemeral(cmd, "Could not load your history.")
		return
	}
	if count == 0 {
		b.postEphemeral(cmd, fmt.Sprintf("No diagnoses yet. Try `%s <text>`.", cmdDiagnose))
		return
	}

	plot, err := b.mgr.Chart(key)
	if err != nil {
		log.Printf("history chart user=%s error: %v", cmd.UserID, err)
		b.postEphemeral(cmd, "Could not render your history.")
		return
	}
	b.postEphemeral(cmd, fmt.Sprintf("*Your diagnoses (%d)*\n```%s```", count, plot))

	var buf bytes.Buffer
	rows, err := b.mgr.Export(key, &buf)
	if err != nil {
		log.Printf("history export user=%s error: %v", cmd.UserID, err)
		b.postEphemeral(cmd, "Could not export your history.")
		return
	}
	now := time.Now().In(b.cfg.Location)
	name := b.users.DisplayName(cmd.UserID)
	_, err = b.api.UploadFileV2(slack.UploadFileV2Parameters{
		Reader:         &buf,
		FileSize:       buf.Len(),
		Filename:       export.Filename(now),
		Channel:        cmd.ChannelID,
		Title:          fmt.Sprintf("Diagnosis history for %s", name),
		InitialComment: fmt.Sprintf("%d diagnoses exported for %s", rows, name),
	})
	if err != nil {
		log.Printf("history upload user=%s error: %v", cmd.UserID, err)
		b.postEphemeral(cmd, "Error uploading the CSV file to this channel. Check bot permissions.")
		return
	}
	log.Printf("history export user=%s rows=%d", cmd.UserID, rows)
}

func (b *Bot) handleTrend(cmd slack.SlashCommand) {
	key := sessionKey(cmd.UserID, cmd.ChannelID)
	count, err := b.mgr.HistoryCount(key)
	if err != nil {
		log.Printf("trend user=%s error: %v", cmd.UserID, err)
		b.postEphemeral(cmd, "Could not load your history.")
		return
	}
	if count == 0 {
		b.postEphemeral(cmd, "No diagnoses yet, so there is no trend to show.")
		return
	}
	summary, err := b.mgr.Trend(key)
	if err != nil {
		log.Printf("trend user=%s error: %v", cmd.UserID, err)
		b.postEphemeral(cmd, renderError(err, b.cfg))
		return
	}
	b.postEphemeral(cmd, renderTrend(summary, b.cfg))
}

func (b *Bot) handleReset(cmd slack.SlashCommand) {
	key := sessionKey(cmd.UserID, cmd.ChannelID)
	if err := b.mgr.Reset(key); err != nil {
		log.Printf("reset user=%s error: %v", cmd.UserID, err)
		b.postEphemeral(cmd, renderError(err, b.cfg))
		return
	}
	b.postEphemeral(cmd, "Your session and history have been cleared.")
}

// handleDebug shows the last model reply for the caller's session.
func (b *Bot) handleDebug(cmd slack.SlashCommand) {
	state, ok := b.mgr.Snapshot(sessionKey(cmd.UserID, cmd.ChannelID))
	if !ok {
		b.postEphemeral(cmd, "No session here yet, or an action is still running.")
		return
	}
	b.postEphemeral(cmd, renderDebug(state))
}

func (b *Bot) handleHelp(cmd slack.SlashCommand) {
	b.postEphemeral(cmd, helpText(b.cfg))
}

func helpText(cfg config.Config) string {
	lines := []string{
		"*Opinion Diagnosis Commands*",
		"",
		fmt.Sprintf("`%s [genre] <text>` — Diagnose a post of up to %d characters.", cmdDiagnose, cfg.MaxInputLength),
		fmt.Sprintf(">*Genres:* %s", strings.Join(cfg.Genres, ", ")),
		fmt.Sprintf(">*Example:* `%s %s We should lower the consumption tax`", cmdDiagnose, firstOr(cfg.Genres, "Economy")),
		"",
		fmt.Sprintf("`%s` — Chart your diagnoses and download them as CSV.", cmdHistory),
		fmt.Sprintf("`%s` — Summarize your overall leaning.", cmdTrend),
		fmt.Sprintf("`%s` — Forget your session and history.", cmdReset),
		fmt.Sprintf("`%s` — Show the last prompt size and raw model reply.", cmdDebug),
		fmt.Sprintf("`%s` — Show this help.", cmdHelp),
		"",
		"Use the buttons under a result to ask for a different similar or opposite opinion.",
	}
	return strings.Join(lines, "\n")
}

func diagnoseUsage(cfg config.Config) string {
	return fmt.Sprintf("Usage: `%s [genre] <text>` (up to %d characters). Genres: %s",
		cmdDiagnose, cfg.MaxInputLength, strings.Join(cfg.Genres, ", "))
}

func firstOr(vals []string, fallback string) string {
	if len(vals) == 0 {
		return fallback
	}
	return vals[0]
}
