package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func testPage(number int, records ...Record) Page {
	return Page{Number: number, Items: records}
}

func TestAccumulator_PreservesOrder(t *testing.T) {
	acc := NewAccumulator()
	ctx := context.Background()

	_ = acc.Consume(ctx, testPage(1, Record{"id": 1}, Record{"id": 2}))
	_ = acc.Consume(ctx, testPage(2))
	_ = acc.Consume(ctx, testPage(3, Record{"id": 3}))

	records := acc.Records()
	if len(records) != 3 {
		t.Fatalf("len(Records()) = %d, want 3", len(records))
	}
	for i, record := range records {
		if record["id"] != i+1 {
			t.Errorf("Records()[%d][id] = %v, want %d", i, record["id"], i+1)
		}
	}
}

func TestAccumulator_EmptyIsNotNil(t *testing.T) {
	acc := NewAccumulator()
	data, err := json.Marshal(acc.Records())
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("Records() = %s, want []", data)
	}
}

func TestProjection(t *testing.T) {
	acc := NewAccumulator(WithProjection("id", "profile.real_name", "deleted"))
	_ = acc.Consume(context.Background(), testPage(1,
		Record{"id": "U1", "profile": map[string]any{"real_name": "Ada"}, "tz": "Europe/London"},
		Record{"id": "U2"},
	))

	records := acc.Records()
	if len(records[0]) != 3 {
		t.Errorf("projected record has %d fields, want 3", len(records[0]))
	}
	if _, ok := records[0]["tz"]; ok {
		t.Error("projection kept unrequested field tz")
	}
	if records[0]["profile.real_name"] != "Ada" {
		t.Errorf("profile.real_name = %v, want Ada", records[0]["profile.real_name"])
	}
	if !IsMissing(records[0]["deleted"]) {
		t.Errorf("deleted = %v, want Missing", records[0]["deleted"])
	}
	if !IsMissing(records[1]["profile.real_name"]) {
		t.Errorf("U2 profile.real_name = %v, want Missing", records[1]["profile.real_name"])
	}
	if got := fmt.Sprint(records[1]["deleted"]); got != "None" {
		t.Errorf("Missing prints %q, want None", got)
	}

	data, err := json.Marshal(records[1])
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `{"deleted":null,"id":"U2","profile.real_name":null}` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestFilterRunsBeforeProjection(t *testing.T) {
	var seen []Record
	sink := NewStreamSink(func(_ context.Context, page Page) error {
		seen = append(seen, page.Items...)
		return nil
	},
		WithFilter(func(r Record) bool { return r["subtype"] == nil }),
		WithProjection("ts"),
	)

	err := sink.Consume(context.Background(), testPage(1,
		Record{"ts": "1", "text": "hi"},
		Record{"ts": "2", "subtype": "channel_join"},
		Record{"ts": "3", "text": "bye"},
	))
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("len(seen) = %d, want 2", len(seen))
	}
	if seen[0]["ts"] != "1" || seen[1]["ts"] != "3" {
		t.Errorf("seen = %v, want ts 1 and 3", seen)
	}
	if _, ok := seen[0]["text"]; ok {
		t.Error("projection kept text")
	}
}

func TestStreamSink_PassesPageThrough(t *testing.T) {
	var numbers []int
	sink := NewStreamSink(func(_ context.Context, page Page) error {
		numbers = append(numbers, page.Number)
		return nil
	})

	for i := 1; i <= 3; i++ {
		if err := sink.Consume(context.Background(), testPage(i, Record{"n": i})); err != nil {
			t.Fatalf("Consume error: %v", err)
		}
	}
	if fmt.Sprint(numbers) != "[1 2 3]" {
		t.Errorf("numbers = %v, want [1 2 3]", numbers)
	}
}
