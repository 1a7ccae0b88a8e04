package export

import (
	"github.com/Sternrassler/slack-exporter/pkg/pagination"
)

// Conversation type labels.
const (
	TypePublicChannel  = "public_channel"
	TypePrivateChannel = "private_channel"
	TypeMPIM           = "mpim"
	TypeGroup          = "group"
	TypeIM             = "im"
)

// ConversationType labels a conversations.list record. Multi-party IMs also
// carry is_group, so is_mpim is checked first.
func ConversationType(c pagination.Record) string {
	switch {
	case flag(c, "is_channel"):
		if flag(c, "is_private") {
			return TypePrivateChannel
		}
		return TypePublicChannel
	case flag(c, "is_mpim"):
		return TypeMPIM
	case flag(c, "is_group"):
		return TypeGroup
	case flag(c, "is_im"):
		return TypeIM
	default:
		return ""
	}
}

// ConversationName returns the channel name, or for direct messages the name
// of the other user.
func ConversationName(c pagination.Record, names func(id string) string) string {
	if name := c.String("name"); name != "" {
		return name
	}
	user := c.String("user")
	if user != "" && names != nil {
		return names(user)
	}
	return user
}

// FindConversation returns the conversation whose id or name is ref.
func FindConversation(conversations []pagination.Record, ref string) (pagination.Record, bool) {
	for _, c := range conversations {
		if c.String("id") == ref {
			return c, true
		}
	}
	for _, c := range conversations {
		if c.String("name") == ref {
			return c, true
		}
	}
	return nil, false
}

// Info is the identifying prefix of every exported row.
type Info struct {
	ID   string
	Name string
	Type string
}

// NewInfo builds the row prefix of a conversation.
func NewInfo(c pagination.Record, names func(id string) string) Info {
	return Info{
		ID:   c.String("id"),
		Name: ConversationName(c, names),
		Type: ConversationType(c),
	}
}

// Prefix returns convo_id, convo_name, convo_type.
func (i Info) Prefix() []string {
	return []string{i.ID, i.Name, i.Type}
}

func flag(r pagination.Record, key string) bool {
	v, ok := r[key].(bool)
	return ok && v
}
