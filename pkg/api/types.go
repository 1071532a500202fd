package api

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message. Tool results are recorded as
// user messages carrying provenance fields (Server/Tool/Arguments), so
// the role set stays closed.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Chat is one conversation transcript. It is owned by the conversation
// store for its namespace and mutated only through append/save operations;
// callers receive copies and never edit a chat in place.
type Chat struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// OriginChatID and OriginMessageID record where a shared chat was
	// forked from. SelectedMessageID marks the active branch tip.
	OriginChatID      string `json:"origin_chat_id,omitempty"`
	OriginMessageID   string `json:"origin_message_id,omitempty"`
	SelectedMessageID string `json:"selected_message_id,omitempty"`
}

// FindMessage returns the message with the given id, or nil.
func (c *Chat) FindMessage(id string) *Message {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}

// Message is a single transcript entry. Messages are immutable once
// appended; corrections are represented as new messages linked through
// ParentID.
type Message struct {
	Role      Role           `json:"role"`
	Content   MessageContent `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	ID        string         `json:"id,omitempty"`
	ParentID  string         `json:"parent_id,omitempty"`

	// Model and Provider record which backend produced an assistant message.
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`

	// ReasoningContent holds the model's reasoning trace when the backend
	// emitted one alongside the answer.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	// Server, Tool and Arguments tag a message whose content originates
	// from a tool execution rather than free-form user intent.
	Server    string         `json:"server,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentBlock is one typed element of structured message content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessageContent holds message content that is either plain text or an
// ordered sequence of typed blocks. On the wire it serializes as a JSON
// string in the plain case and as an array of blocks otherwise.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
}

// TextContent builds plain-text message content.
func TextContent(s string) MessageContent {
	return MessageContent{Text: s}
}

// Plain returns the content as flat text, joining text blocks with
// newlines when the content is structured.
func (c MessageContent) Plain() string {
	if c.Blocks == nil {
		return c.Text
	}
	out := ""
	for _, b := range c.Blocks {
		if b.Type != "text" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// MarshalJSON encodes plain content as a JSON string and structured
// content as an array of blocks.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts either a JSON string or an array of blocks.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Blocks = nil
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	c.Blocks = blocks
	c.Text = ""
	return nil
}

// BotConfig selects the provider configuration and tool servers a turn
// may use. Resolved once per request from the bot store.
type BotConfig struct {
	Name            string   `json:"name" yaml:"name"`
	Model           string   `json:"model" yaml:"model"`
	BaseURL         string   `json:"base_url,omitempty" yaml:"base_url"`
	APIKey          string   `json:"api_key,omitempty" yaml:"api_key"`
	MCPServers      []string `json:"mcp_servers,omitempty" yaml:"mcp_servers"`
	MaxTokens       int      `json:"max_tokens,omitempty" yaml:"max_tokens"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty" yaml:"reasoning_effort"`

	// TimeoutMS bounds provider calls for this bot, in milliseconds.
	// Zero means the process-wide default applies.
	TimeoutMS int `json:"timeout_ms,omitempty" yaml:"timeout_ms"`
}

// ToolServerConfig describes a remote tool server.
type ToolServerConfig struct {
	Name  string `json:"name" yaml:"name"`
	URL   string `json:"url" yaml:"url"`
	Token string `json:"token,omitempty" yaml:"token"`

	// NeedConfirm lists tool names that must not execute without explicit
	// external approval. Empty means no confirmation is ever required.
	NeedConfirm []string `json:"need_confirm,omitempty" yaml:"need_confirm"`
}

// RequiresConfirmation reports whether the named tool is in this server's
// confirmation set.
func (s ToolServerConfig) RequiresConfirmation(tool string) bool {
	for _, name := range s.NeedConfirm {
		if name == tool {
			return true
		}
	}
	return false
}

// ToolDescriptor describes one tool offered by a tool server.
type ToolDescriptor struct {
	Server      string          `json:"server"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// TurnRequest initiates one conversational turn. Namespace is resolved by
// the transport layer, not by the client payload.
type TurnRequest struct {
	Namespace     string `json:"-"`
	Content       string `json:"content"`
	BotName       string `json:"botName"`
	ChatID        string `json:"chatId"`
	Server        string `json:"server,omitempty"`
	UserMessageID string `json:"userMessageId,omitempty"`
}

// ConfirmRequest executes a previously gated tool call. It runs outside
// any turn and never touches the originating chat's transcript.
type ConfirmRequest struct {
	Namespace string         `json:"-"`
	BotName   string         `json:"botName"`
	Server    string         `json:"server"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
}
