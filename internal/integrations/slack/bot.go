package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"opinionbot/internal/config"
	"opinionbot/internal/session"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	cmdDiagnose = "/diagnose"
	cmdHistory  = "/diagnose-history"
	cmdTrend    = "/diagnose-trend"
	cmdReset    = "/diagnose-reset"
	cmdHelp     = "/diagnose-help"
	cmdDebug    = "/diagnose-debug"

	actionRegenSimilar  = "diagnosis_regen_similar"
	actionRegenOpposite = "diagnosis_regen_opposite"
)

type Bot struct {
	ctx   context.Context
	api   *slack.Client
	mgr   *session.Manager
	cfg   config.Config
	users *userNames
}

func NewBot(ctx context.Context, cfg config.Config, mgr *session.Manager, api *slack.Client) *Bot {
	return &Bot{ctx: ctx, api: api, mgr: mgr, cfg: cfg, users: newUserNames(api)}
}

// sessionKey scopes a session to one user in one channel.
func sessionKey(userID, channelID string) string {
	return userID + ":" + channelID
}

func StartSlackBot(ctx context.Context, cfg config.Config, mgr *session.Manager, api *slack.Client) error {
	b := NewBot(ctx, cfg, mgr, api)
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go b.handleSlashCommand(cmd)
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go b.handleEventsAPI(eventsAPIEvent)
			case socketmode.EventTypeInteractive:
				client.Ack(*evt.Request)
				callback, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				go b.handleInteraction(callback)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.RunContext(ctx)
}

func (b *Bot) handleSlashCommand(cmd slack.SlashCommand) {
	switch cmd.Command {
	case cmdDiagnose:
		b.handleDiagnose(cmd)
	case cmdHistory:
		b.handleHistory(cmd)
	case cmdTrend:
		b.handleTrend(cmd)
	case cmdReset:
		b.handleReset(cmd)
	case cmdHelp:
		b.handleHelp(cmd)
	case cmdDebug:
		b.handleDebug(cmd)
	}
}

func (b *Bot) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MemberJoinedChannelEvent:
		b.handleMemberJoined(ev)
	}
}

func (b *Bot) handleMemberJoined(ev *slackevents.MemberJoinedChannelEvent) {
	log.Printf("member-joined user=%s channel=%s", ev.User, ev.Channel)

	intro := fmt.Sprintf("Hi! I place short opinion posts on a %s / %s map.\n\n"+
		"• `%s [genre] <text>` to diagnose a post (up to %d characters)\n"+
		"• `%s` to see all commands",
		b.cfg.NegativePole, b.cfg.PositivePole, cmdDiagnose, b.cfg.MaxInputLength, cmdHelp,
	)
	_, _, err := b.api.PostMessage(ev.Channel,
		slack.MsgOptionText(intro, false),
		slack.MsgOptionPostEphemeral(ev.User),
	)
	if err != nil {
		log.Printf("member-joined intro error user=%s channel=%s: %v", ev.User, ev.Channel, err)
	}
}

func (b *Bot) handleInteraction(cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	switch act.ActionID {
	case actionRegenSimilar, actionRegenOpposite:
		b.handleRegenerate(channelID, cb.User.ID, act.ActionID)
	}
}

func (b *Bot) postEphemeral(cmd slack.SlashCommand, text string) {
	b.postEphemeralTo(cmd.ChannelID, cmd.UserID, text)
}

func (b *Bot) postEphemeralTo(channelID, userID, text string) {
	_, err := b.api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}

func (b *Bot) postBlocks(channelID, userID, fallback string, blocks []slack.Block) {
	_, err := b.api.PostEphemeral(channelID, userID,
		slack.MsgOptionText(fallback, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		log.Printf("Error posting blocks: %v", err)
	}
}

// parseDiagnoseArgs splits an optional leading genre from the post text. The
// first word counts as a genre only when it matches a configured one.
func parseDiagnoseArgs(text string, cfg config.Config) (genre, body string) {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return "", text
	}
	if g, ok := cfg.MatchGenre(strings.Trim(text[:i], "[]")); ok {
		return g, strings.TrimSpace(text[i:])
	}
	return "", text
}
