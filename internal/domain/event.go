package domain

import "strings"

// SurfaceType is where an inbound message was posted
type SurfaceType string

const (
	SurfaceDirect      SurfaceType = "im"
	SurfaceGroupDirect SurfaceType = "mpim"
	SurfaceChannel     SurfaceType = "channel"
	SurfaceGroup       SurfaceType = "group"
)

// SessionKind maps a surface to its session namespace.
// The second result is false for surfaces the bot does not answer on.
func (s SurfaceType) SessionKind() (SessionKind, bool) {
	switch s {
	case SurfaceDirect, SurfaceGroupDirect:
		return SessionDirect, true
	case SurfaceChannel, SurfaceGroup:
		return SessionChannel, true
	}
	return 0, false
}

// InboundEvent is a chat message delivered by the messaging platform
type InboundEvent struct {
	Surface        SurfaceType
	ActorID        string
	ConversationID string
	Text           string
}

// SessionKey returns the key for the session this event belongs to.
// Direct conversations are keyed by the user, channel conversations by the channel.
func (e InboundEvent) SessionKey() (SessionKey, bool) {
	kind, ok := e.Surface.SessionKind()
	if !ok {
		return SessionKey{}, false
	}
	if kind == SessionDirect {
		return NewSessionKey(kind, e.ActorID), true
	}
	return NewSessionKey(kind, e.ConversationID), true
}

// CommandRequest is a slash command invocation
type CommandRequest struct {
	Command   string
	ActorID   string
	ChannelID string
	TriggerID string
}

// FromDirectMessage reports whether the command was issued in a DM.
// Slack DM channel IDs start with "D".
func (c CommandRequest) FromDirectMessage() bool {
	return strings.HasPrefix(c.ChannelID, "D")
}
