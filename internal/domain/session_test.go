package domain_test

import (
	"fmt"
	"testing"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_TrimKeepsMostRecent(t *testing.T) {
	sess := domain.NewSession()

	for i := 0; i < 10; i++ {
		sess.Append(domain.NewTurn(fmt.Sprintf("q%d", i), domain.RoleUser)).Trim(6)
		assert.LessOrEqual(t, len(sess.Messages), 6)
		sess.Append(domain.NewTurn(fmt.Sprintf("a%d", i), domain.RoleAssistant)).Trim(6)
		assert.LessOrEqual(t, len(sess.Messages), 6)
	}

	require.Len(t, sess.Messages, 6)
	want := []string{"q7", "a7", "q8", "a8", "q9", "a9"}
	for i, turn := range sess.Messages {
		assert.Equal(t, want[i], turn.Content)
	}
}

func TestSession_TrimUnderLimit(t *testing.T) {
	sess := domain.NewSession(domain.NewTurn("hello", domain.RoleAssistant))
	sess.Trim(6)
	assert.Len(t, sess.Messages, 1)

	sess.Trim(0)
	assert.Len(t, sess.Messages, 1)
}

func TestSession_CloneDoesNotAlias(t *testing.T) {
	sess := domain.NewSession(domain.NewTurn("hi", domain.RoleAssistant))
	clone := sess.Clone()
	clone.Append(domain.NewTurn("more", domain.RoleUser))
	clone.Pending = true

	assert.Len(t, sess.Messages, 1)
	assert.False(t, sess.Pending)
}

func TestWithSystemPrompt(t *testing.T) {
	history := []domain.Turn{domain.NewTurn("hi", "")}

	msgs := domain.WithSystemPrompt("be nice", history)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Len(t, history, 1)

	assert.Len(t, domain.WithSystemPrompt("", history), 1)
}

func TestSessionKey(t *testing.T) {
	tests := []struct {
		name    string
		event   domain.InboundEvent
		wantKey string
		wantOK  bool
	}{
		{"im keyed by user", domain.InboundEvent{Surface: domain.SurfaceDirect, ActorID: "U1", ConversationID: "D9"}, "user:U1", true},
		{"mpim keyed by user", domain.InboundEvent{Surface: domain.SurfaceGroupDirect, ActorID: "U1", ConversationID: "G9"}, "user:U1", true},
		{"channel keyed by channel", domain.InboundEvent{Surface: domain.SurfaceChannel, ActorID: "U1", ConversationID: "C9"}, "channel:C9", true},
		{"group keyed by channel", domain.InboundEvent{Surface: domain.SurfaceGroup, ActorID: "U1", ConversationID: "G9"}, "channel:G9", true},
		{"unknown surface", domain.InboundEvent{Surface: "app_home", ActorID: "U1"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := tt.event.SessionKey()
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantKey, key.String())
			}
		})
	}
}

func TestParseSessionKind(t *testing.T) {
	kind, err := domain.ParseSessionKind("channel")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionChannel, kind)
	assert.False(t, kind.AutoCreate())

	kind, err = domain.ParseSessionKind("user")
	require.NoError(t, err)
	assert.True(t, kind.AutoCreate())

	_, err = domain.ParseSessionKind("thread")
	assert.Error(t, err)
}

func TestUsageRecord_LogLine(t *testing.T) {
	rec := domain.UsageRecord{ActorID: "U1", Tokens: 42, ElapsedSeconds: 1.25}
	assert.Equal(t, "U1/42/1.25", rec.LogLine())
}
