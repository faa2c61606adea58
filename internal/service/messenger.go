package service

import "context"

// MessageRef identifies a posted chat message so it can be edited later
type MessageRef struct {
	ChannelID string
	Timestamp string
}

// Messenger is the chat surface the bot writes to
type Messenger interface {
	PostMessage(ctx context.Context, channelID, text string) (MessageRef, error)
	UpdateMessage(ctx context.Context, ref MessageRef, text string) error
}

// ImagePoster posts a generated image into a conversation.
// text is the notification fallback, caption is shown above the image.
type ImagePoster interface {
	PostImage(ctx context.Context, channelID, text, caption, imageURL string) error
}
