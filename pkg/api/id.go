package api

import "github.com/google/uuid"

const (
	messageIDPrefix = "msg_"
	chatIDPrefix    = "chat_"
)

// NewMessageID generates a process-unique message id.
func NewMessageID() string {
	return messageIDPrefix + uuid.NewString()
}

// NewChatID generates a chat id for chats saved without one.
func NewChatID() string {
	return chatIDPrefix + uuid.NewString()
}
