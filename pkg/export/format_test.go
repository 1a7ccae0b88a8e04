package export

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/Sternrassler/slack-exporter/pkg/pagination"
)

var testInfo = Info{ID: "C1", Name: "general", Type: TypePublicChannel}

func testNames(id string) string {
	switch id {
	case "U1":
		return "ada"
	case "U2":
		return "grace"
	default:
		return None
	}
}

func TestTSToDatetime(t *testing.T) {
	tests := []struct {
		ts   string
		want string
	}{
		{"1700000000.000100", "2023-11-14 22:13:20"},
		{"1700000000", "2023-11-14 22:13:20"},
		{"", None},
		{"abc.123", None},
	}

	for _, tt := range tests {
		if got := TSToDatetime(tt.ts, time.UTC); got != tt.want {
			t.Errorf("TSToDatetime(%q) = %q, want %q", tt.ts, got, tt.want)
		}
	}
}

func TestTimeToTS(t *testing.T) {
	got := TimeToTS(time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC))
	if got != "1700000000.000000" {
		t.Errorf("TimeToTS() = %q, want 1700000000.000000", got)
	}
}

func TestMessageRow(t *testing.T) {
	tests := []struct {
		name string
		msg  pagination.Record
		want []string
	}{
		{
			name: "regular message",
			msg:  pagination.Record{"type": "message", "user": "U1", "text": "hello", "ts": "1700000000.000100"},
			want: []string{"C1", "general", "public_channel", "None", "hello", "U1", "ada", "1700000000.000100", "2023-11-14 22:13:20"},
		},
		{
			name: "bot message without user",
			msg:  pagination.Record{"subtype": "bot_message", "text": "deploy done", "ts": "1700000000.000200"},
			want: []string{"C1", "general", "public_channel", "bot_message", "deploy done", "None", "None", "1700000000.000200", "2023-11-14 22:13:20"},
		},
		{
			name: "unknown user and no text",
			msg:  pagination.Record{"subtype": "channel_join", "user": "U9", "ts": "1700000000.000300"},
			want: []string{"C1", "general", "public_channel", "channel_join", "None", "U9", "None", "1700000000.000300", "2023-11-14 22:13:20"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MessageRow(testInfo, tt.msg, testNames, time.UTC)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MessageRow() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestReactionRows(t *testing.T) {
	var msg pagination.Record
	if err := json.Unmarshal([]byte(`{
		"ts": "1700000000.000100",
		"reactions": [
			{"name": "thumbsup", "users": ["U1", "U2"], "count": 2},
			{"name": "eyes", "users": ["U9"], "count": 1}
		]
	}`), &msg); err != nil {
		t.Fatalf("invalid test message: %v", err)
	}

	got := ReactionRows(testInfo, msg, testNames, time.UTC)
	prefix := []string{"C1", "general", "public_channel", "1700000000.000100", "2023-11-14 22:13:20"}
	want := [][]string{
		append(append([]string(nil), prefix...), "thumbsup", "U1", "ada"),
		append(append([]string(nil), prefix...), "thumbsup", "U2", "grace"),
		append(append([]string(nil), prefix...), "eyes", "U9", "None"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReactionRows() =\n%q\nwant\n%q", got, want)
	}
}

func TestReactionRows_NoReactions(t *testing.T) {
	if rows := ReactionRows(testInfo, pagination.Record{"ts": "1"}, testNames, time.UTC); rows != nil {
		t.Errorf("ReactionRows() = %v, want nil", rows)
	}
}

func TestMemberRows(t *testing.T) {
	members := []string{"U1", "U2", "U3"}

	flat := MemberRows(testInfo, members, testNames, false)
	if len(flat) != 3 {
		t.Fatalf("len(flat) = %d, want 3", len(flat))
	}
	if want := []string{"C1", "general", "public_channel", "U2", "grace"}; !reflect.DeepEqual(flat[1], want) {
		t.Errorf("flat[1] = %q, want %q", flat[1], want)
	}

	graph := MemberRows(testInfo, members, testNames, true)
	if len(graph) != 6 {
		t.Fatalf("len(graph) = %d, want 6 ordered pairs", len(graph))
	}
	for _, row := range graph {
		if row[3] == row[5] {
			t.Errorf("graph row pairs a member with itself: %q", row)
		}
		if len(row) != len(GraphHeader) {
			t.Errorf("graph row has %d columns, want %d", len(row), len(GraphHeader))
		}
	}
	if want := []string{"C1", "general", "public_channel", "U1", "ada", "U2", "grace"}; !reflect.DeepEqual(graph[0], want) {
		t.Errorf("graph[0] = %q, want %q", graph[0], want)
	}
}

func TestMemberRows_SingleMemberGraph(t *testing.T) {
	if rows := MemberRows(testInfo, []string{"U1"}, testNames, true); len(rows) != 0 {
		t.Errorf("MemberRows() = %v, want no pairs", rows)
	}
}
