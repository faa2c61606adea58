package domain

// MessageRole represents the sender of a turn
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether the role is one of the closed set accepted by providers
func (r MessageRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is one message in a conversation. Turns are never modified once appended.
type Turn struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// NewTurn builds a turn, defaulting the role to user
func NewTurn(content string, role MessageRole) Turn {
	if role == "" {
		role = RoleUser
	}
	return Turn{Role: role, Content: content}
}

// WithSystemPrompt prepends the system instruction at call time.
// The returned slice never aliases the history.
func WithSystemPrompt(system string, history []Turn) []Turn {
	out := make([]Turn, 0, len(history)+1)
	if system != "" {
		out = append(out, Turn{Role: RoleSystem, Content: system})
	}
	return append(out, history...)
}
