package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/slack-exporter/pkg/pagination"
)

// None is written for values a record does not have.
const None = "None"

// DatetimeLayout formats message timestamps.
const DatetimeLayout = "2006-01-02 15:04:05"

// CSV headers.
var (
	MembersHeader   = []string{"convo_id", "convo_name", "convo_type", "user_id", "user_name"}
	GraphHeader     = []string{"convo_id", "convo_name", "convo_type", "user_id", "user_name", "user_id2", "user_name2"}
	MessagesHeader  = []string{"convo_id", "convo_name", "convo_type", "msg_subtype", "msg_text", "msg_user_id", "msg_user_name", "msg_timestamp", "msg_datetime"}
	ReactionsHeader = []string{"convo_id", "convo_name", "convo_type", "msg_timestamp", "msg_datetime", "reaction_name", "reaction_user", "reaction_username"}
)

// TSToDatetime formats a Slack timestamp ("1700000000.000100") in loc.
// Unparseable timestamps yield None.
func TSToDatetime(ts string, loc *time.Location) string {
	seconds, _, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return None
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(sec, 0).In(loc).Format(DatetimeLayout)
}

// TimeToTS converts t to a Slack timestamp.
func TimeToTS(t time.Time) string {
	return fmt.Sprintf("%d.000000", t.Unix())
}

// field returns the value at key, or None when absent.
func field(r pagination.Record, key string) string {
	v, ok := r.Lookup(key)
	if !ok || v == nil || pagination.IsMissing(v) {
		return None
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// MessageRow formats one conversations.history message.
func MessageRow(info Info, msg pagination.Record, names func(id string) string, loc *time.Location) []string {
	user := field(msg, "user")
	userName := None
	if user != None && names != nil {
		userName = names(user)
	}
	ts := field(msg, "ts")

	return append(info.Prefix(),
		field(msg, "subtype"),
		field(msg, "text"),
		user,
		userName,
		ts,
		TSToDatetime(ts, loc),
	)
}

// ReactionRows formats the reactions of one message: one row per reacting user.
func ReactionRows(info Info, msg pagination.Record, names func(id string) string, loc *time.Location) [][]string {
	reactions, _ := msg["reactions"].([]any)
	if len(reactions) == 0 {
		return nil
	}

	ts := field(msg, "ts")
	prefix := append(info.Prefix(), ts, TSToDatetime(ts, loc))

	var rows [][]string
	for _, item := range reactions {
		reaction, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := field(pagination.Record(reaction), "name")
		reactors, _ := reaction["users"].([]any)
		for _, u := range reactors {
			user, ok := u.(string)
			if !ok {
				continue
			}
			userName := None
			if names != nil {
				userName = names(user)
			}
			row := append([]string(nil), prefix...)
			rows = append(rows, append(row, name, user, userName))
		}
	}
	return rows
}

// MemberRows formats the members of one conversation. In graph mode every
// ordered pair of distinct members becomes a row.
func MemberRows(info Info, members []string, names func(id string) string, graph bool) [][]string {
	name := func(id string) string {
		if names == nil {
			return None
		}
		return names(id)
	}

	var rows [][]string
	for _, member := range members {
		if !graph {
			rows = append(rows, append(info.Prefix(), member, name(member)))
			continue
		}
		for _, peer := range members {
			if peer == member {
				continue
			}
			rows = append(rows, append(info.Prefix(), member, name(member), peer, name(peer)))
		}
	}
	return rows
}
