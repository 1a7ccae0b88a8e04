package slack

import (
	"strings"

	"github.com/Sternrassler/slack-exporter/pkg/pagination"
)

// Paged Web API methods.
const (
	MethodConversationsList    = "conversations.list"
	MethodConversationsHistory = "conversations.history"
	MethodConversationsMembers = "conversations.members"
	MethodReactionsGet         = "reactions.get"
	MethodUsersList            = "users.list"
	MethodUsersInfo            = "users.info"
)

// Params builds the fetch request for one method.
type Params interface {
	Request() pagination.Request
}

// ConversationsList lists the conversations visible to the token.
type ConversationsList struct {
	Types           []string
	ExcludeArchived bool
}

// Request implements Params.
func (p ConversationsList) Request() pagination.Request {
	args := map[string]string{}
	if len(p.Types) > 0 {
		args["types"] = strings.Join(p.Types, ",")
	}
	if p.ExcludeArchived {
		args["exclude_archived"] = "true"
	}
	return pagination.Request{
		Method:   MethodConversationsList,
		Args:     args,
		ItemsKey: "channels",
		Label:    "conversations",
	}
}

// ConversationsHistory lists the messages of a conversation. Oldest and Latest
// are Slack timestamps ("1700000000.000000"); empty means unbounded.
type ConversationsHistory struct {
	Channel   string
	Oldest    string
	Latest    string
	Inclusive bool
}

// Request implements Params.
func (p ConversationsHistory) Request() pagination.Request {
	args := map[string]string{"channel": p.Channel}
	if p.Oldest != "" {
		args["oldest"] = p.Oldest
	}
	if p.Latest != "" {
		args["latest"] = p.Latest
	}
	if p.Inclusive {
		args["inclusive"] = "true"
	}
	return pagination.Request{
		Method:   MethodConversationsHistory,
		Args:     args,
		ItemsKey: "messages",
		Label:    p.Channel,
	}
}

// ConversationsMembers lists the user ids of a conversation. Each record holds
// the id under pagination.ValueField.
type ConversationsMembers struct {
	Channel string
}

// Request implements Params.
func (p ConversationsMembers) Request() pagination.Request {
	return pagination.Request{
		Method:   MethodConversationsMembers,
		Args:     map[string]string{"channel": p.Channel},
		ItemsKey: "members",
		Label:    p.Channel,
	}
}

// ReactionsGet fetches one message with all of its reactions.
type ReactionsGet struct {
	Channel   string
	Timestamp string
}

// Request implements Params.
func (p ReactionsGet) Request() pagination.Request {
	return pagination.Request{
		Method: MethodReactionsGet,
		Args: map[string]string{
			"channel":   p.Channel,
			"timestamp": p.Timestamp,
			"full":      "true",
		},
		ItemsKey: "message",
		Label:    p.Channel + "/" + p.Timestamp,
	}
}

// UsersList lists every user of the workspace.
type UsersList struct{}

// Request implements Params.
func (UsersList) Request() pagination.Request {
	return pagination.Request{
		Method:   MethodUsersList,
		Args:     map[string]string{},
		ItemsKey: "members",
		Label:    "users",
	}
}

// UsersInfo fetches a single user.
type UsersInfo struct {
	User string
}

// Request implements Params.
func (p UsersInfo) Request() pagination.Request {
	return pagination.Request{
		Method:   MethodUsersInfo,
		Args:     map[string]string{"user": p.User},
		ItemsKey: "user",
		Label:    p.User,
	}
}
