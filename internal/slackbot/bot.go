package slackbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/slack-gpt/internal/config"
	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/service"
	"github.com/Rrens/slack-gpt/internal/usage"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const interactionTimeout = 2 * time.Minute

// ConversationHandler answers inbound chat messages
type ConversationHandler interface {
	HandleMessage(ctx context.Context, event domain.InboundEvent) error
}

// SessionCommands are the channel session slash commands
type SessionCommands interface {
	Start(ctx context.Context, req domain.CommandRequest) (service.CommandReply, error)
	End(ctx context.Context, req domain.CommandRequest) (service.CommandReply, error)
	Reset(ctx context.Context, req domain.CommandRequest) (service.CommandReply, error)
}

// ImageDrawer handles submitted draw-image dialogs
type ImageDrawer interface {
	Draw(ctx context.Context, channelID string, req domain.ImageRequest) error
}

// UsageReports backs the usage modal and the home tab
type UsageReports interface {
	Billing(ctx context.Context) (*domain.BillingSummary, error)
	Ranking(ctx context.Context) ([]domain.UserUsage, error)
	UserStats(ctx context.Context, actorID string) (*domain.UserUsage, error)
}

// Acker acknowledges socket mode envelopes. *socketmode.Client implements it.
type Acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// Bot dispatches socket mode events to the services
type Bot struct {
	api           API
	acker         Acker
	messenger     *Messenger
	conversations ConversationHandler
	commands      SessionCommands
	images        ImageDrawer
	usage         UsageReports
	cfg           config.SlackConfig
	waiting       string
}

// NewBot creates a new bot
func NewBot(
	api API,
	acker Acker,
	conversations ConversationHandler,
	commands SessionCommands,
	images ImageDrawer,
	reports UsageReports,
	cfg config.SlackConfig,
	waiting string,
) *Bot {
	return &Bot{
		api:           api,
		acker:         acker,
		messenger:     NewMessenger(api),
		conversations: conversations,
		commands:      commands,
		images:        images,
		usage:         reports,
		cfg:           cfg,
		waiting:       waiting,
	}
}

// Run consumes events until ctx is cancelled or the connection fails.
// Each event is handled on its own goroutine.
func (b *Bot) Run(ctx context.Context, client *socketmode.Client) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.RunContext(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("socket mode connection failed: %w", err)
			}
			return nil
		case evt, ok := <-client.Events:
			if !ok {
				return nil
			}
			go b.Dispatch(ctx, evt)
		}
	}
}

// Dispatch acknowledges and handles one socket mode event
func (b *Bot) Dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		log.Info().Msg("Connecting to Slack with socket mode")
	case socketmode.EventTypeConnected:
		log.Info().Msg("Connected to Slack with socket mode")
	case socketmode.EventTypeConnectionError:
		log.Warn().Interface("data", evt.Data).Msg("Slack connection error, retrying")
	case socketmode.EventTypeEventsAPI:
		b.ack(evt)
		event, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		b.handleEventsAPI(ctx, event)
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			b.ack(evt)
			return
		}
		b.handleSlashCommand(ctx, evt, cmd)
	case socketmode.EventTypeInteractive:
		b.ack(evt)
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		b.handleInteraction(ctx, callback)
	}
}

func (b *Bot) ack(evt socketmode.Event, payload ...interface{}) {
	if evt.Request == nil {
		return
	}
	b.acker.Ack(*evt.Request, payload...)
}

func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Edits, joins and the bot's own posts carry a subtype or bot ID.
		if ev.BotID != "" || ev.SubType != "" || ev.User == "" {
			return
		}
		inbound := domain.InboundEvent{
			Surface:        domain.SurfaceType(ev.ChannelType),
			ActorID:        ev.User,
			ConversationID: ev.Channel,
			Text:           ev.Text,
		}
		if err := b.conversations.HandleMessage(ctx, inbound); err != nil {
			log.Error().Err(err).Str("actor_id", ev.User).Str("channel_id", ev.Channel).Msg("Error handling message")
		}
	case *slackevents.AppHomeOpenedEvent:
		if ev.Tab != "" && ev.Tab != "home" {
			return
		}
		if err := b.publishHome(ctx, ev.User); err != nil {
			log.Error().Err(err).Str("actor_id", ev.User).Msg("Error publishing home tab")
		}
	}
}

func (b *Bot) handleSlashCommand(ctx context.Context, evt socketmode.Event, cmd slack.SlashCommand) {
	req := domain.CommandRequest{
		Command:   cmd.Command,
		ActorID:   cmd.UserID,
		ChannelID: cmd.ChannelID,
		TriggerID: cmd.TriggerID,
	}
	logger := log.With().Str("command", cmd.Command).Str("actor_id", cmd.UserID).Str("channel_id", cmd.ChannelID).Logger()

	var run func(context.Context, domain.CommandRequest) (service.CommandReply, error)
	switch cmd.Command {
	case b.cfg.Commands.Start:
		run = b.commands.Start
	case b.cfg.Commands.End:
		run = b.commands.End
	case b.cfg.Commands.Reset:
		run = b.commands.Reset
	case b.cfg.Commands.Usage:
		b.ack(evt)
		if _, err := b.api.OpenViewContext(ctx, cmd.TriggerID, usageMenuModal(cmd.UserID)); err != nil {
			logger.Error().Err(err).Msg("Failed to open usage modal")
		}
		return
	case b.cfg.Commands.Draw:
		b.ack(evt)
		if _, err := b.api.OpenViewContext(ctx, cmd.TriggerID, drawModal(cmd.UserID)); err != nil {
			logger.Error().Err(err).Msg("Failed to open draw modal")
		}
		return
	default:
		b.ack(evt)
		logger.Warn().Msg("Unknown slash command")
		return
	}

	reply, err := run(ctx, req)
	if err != nil {
		b.ack(evt)
		logger.Error().Err(err).Msg("Error handling command")
		return
	}
	if reply.Ephemeral {
		b.ack(evt, map[string]interface{}{"response_type": "ephemeral", "text": reply.Text})
		return
	}
	b.ack(evt)
	if _, err := b.messenger.PostMessage(ctx, cmd.ChannelID, reply.Text); err != nil {
		logger.Error().Err(err).Msg("Failed to post command reply")
	}
}

func (b *Bot) handleInteraction(ctx context.Context, callback slack.InteractionCallback) {
	ctx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	switch callback.Type {
	case slack.InteractionTypeBlockActions:
		for _, action := range callback.ActionCallback.BlockActions {
			var err error
			switch action.ActionID {
			case ActionTotalUsage:
				err = b.showTotalUsage(ctx, callback.View)
			case ActionRankUsage:
				err = b.showRanking(ctx, callback.View)
			default:
				continue
			}
			if err != nil {
				log.Error().Err(err).Str("action_id", action.ActionID).Str("actor_id", callback.User.ID).Msg("Error handling action")
			}
		}
	case slack.InteractionTypeViewSubmission:
		if callback.View.CallbackID != CallbackDrawImage {
			return
		}
		req := parseDrawSubmission(callback.User.ID, callback.View.State)
		if err := b.images.Draw(ctx, callback.User.ID, req); err != nil {
			log.Error().Err(err).Str("actor_id", callback.User.ID).Msg("Error drawing image")
		}
	}
}

func (b *Bot) showTotalUsage(ctx context.Context, view slack.View) error {
	resp, err := b.api.UpdateViewContext(ctx, waitingModal(b.waiting), "", view.Hash, view.ID)
	if err != nil {
		return fmt.Errorf("failed to show waiting view: %w", err)
	}

	summary, err := b.usage.Billing(ctx)
	if err != nil {
		return err
	}

	if _, err := b.api.UpdateViewContext(ctx, totalUsageModal(*summary), "", resp.Hash, resp.ID); err != nil {
		return fmt.Errorf("failed to show total usage: %w", err)
	}
	return nil
}

func (b *Bot) showRanking(ctx context.Context, view slack.View) error {
	ranking, err := b.usage.Ranking(ctx)
	if err != nil {
		return err
	}
	if _, err := b.api.UpdateViewContext(ctx, rankingModal(ranking), "", view.Hash, view.ID); err != nil {
		return fmt.Errorf("failed to show ranking: %w", err)
	}
	return nil
}

func (b *Bot) publishHome(ctx context.Context, userID string) error {
	stats, err := b.usage.UserStats(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		stats = b.emptyStats(userID)
	} else if err != nil {
		return err
	}

	commands := []string{
		fmt.Sprintf(" `%s` :  대화를 시작합니다. (_채널에서 사용가능_) ", b.cfg.Commands.Start),
		fmt.Sprintf(" `%s` :  대화를 종료합니다. (_채널에서 사용가능_) ", b.cfg.Commands.End),
		fmt.Sprintf(" `%s` :  대화를 처음부터 다시 시작합니다. (_채널에서 사용가능_) ", b.cfg.Commands.Reset),
	}
	req := slack.PublishViewContextRequest{UserID: userID, View: homeView(userID, commands, *stats)}
	if _, err := b.api.PublishViewContext(ctx, req); err != nil {
		return fmt.Errorf("failed to publish home tab: %w", err)
	}
	return nil
}

func (b *Bot) emptyStats(userID string) *domain.UserUsage {
	days := usage.MonthDays(time.Now().UTC())
	stats := &domain.UserUsage{ActorID: userID, Days: make([]domain.DayUsage, len(days))}
	for i, d := range days {
		stats.Days[i] = domain.DayUsage{Date: d}
	}
	return stats
}
