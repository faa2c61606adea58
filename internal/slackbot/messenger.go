package slackbot

import (
	"context"
	"fmt"

	"github.com/Rrens/slack-gpt/internal/service"
	"github.com/slack-go/slack"
)

// API is the subset of the Slack Web API the bot calls. *slack.Client implements it.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	UpdateViewContext(ctx context.Context, view slack.ModalViewRequest, externalID, hash, viewID string) (*slack.ViewResponse, error)
	PublishViewContext(ctx context.Context, req slack.PublishViewContextRequest) (*slack.ViewResponse, error)
}

// Messenger posts and edits chat messages through the Slack Web API
type Messenger struct {
	api API
}

// NewMessenger creates a messenger over api
func NewMessenger(api API) *Messenger {
	return &Messenger{api: api}
}

// PostMessage posts text to a channel, DM or user ID
func (m *Messenger) PostMessage(ctx context.Context, channelID, text string) (service.MessageRef, error) {
	channel, ts, err := m.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return service.MessageRef{}, fmt.Errorf("failed to post message: %w", err)
	}
	return service.MessageRef{ChannelID: channel, Timestamp: ts}, nil
}

// UpdateMessage replaces the text of a posted message
func (m *Messenger) UpdateMessage(ctx context.Context, ref service.MessageRef, text string) error {
	if _, _, _, err := m.api.UpdateMessageContext(ctx, ref.ChannelID, ref.Timestamp, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

// PostImage posts an image block under a bold caption
func (m *Messenger) PostImage(ctx context.Context, channelID, text, caption, imageURL string) error {
	_, _, err := m.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(imageBlocks(caption, imageURL)...),
	)
	if err != nil {
		return fmt.Errorf("failed to post image: %w", err)
	}
	return nil
}
