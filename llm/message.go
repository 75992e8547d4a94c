// Package llm provides a provider-agnostic gateway over chat-completion APIs.
package llm

// Role identifies the author of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. Order is significant: the slice is
// sent to the provider as the literal context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage is a convenience constructor for a single user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}
