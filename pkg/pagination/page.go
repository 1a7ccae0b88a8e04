package pagination

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Response fields used for cursor extraction.
const (
	// MetadataKey names the pagination metadata object of a response.
	MetadataKey = "response_metadata"

	// NextCursorKey names the continuation token inside MetadataKey.
	NextCursorKey = "next_cursor"

	// ValueField holds non-object items, e.g. the user ids of conversations.members.
	ValueField = "value"
)

// ErrMalformedPage is returned when a response does not have the expected shape.
// It is treated as transient by the fetcher.
var ErrMalformedPage = errors.New("malformed page")

// RawPage is one undecoded response: its top-level fields by name.
type RawPage map[string]json.RawMessage

// Record is one item of a collection.
type Record map[string]any

// Lookup returns the value at a dotted path such as "profile.real_name".
func (r Record) Lookup(path string) (any, bool) {
	var current any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			if rec, isRec := current.(Record); isRec {
				m = rec
			} else {
				return nil, false
			}
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// String returns the value at path formatted for output, or "" when absent.
func (r Record) String(path string) string {
	v, ok := r.Lookup(path)
	if !ok || v == nil || IsMissing(v) {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Cursor is an optional continuation token. The zero value means "no next page".
type Cursor struct {
	Value string
	Valid bool
}

// NewCursor returns a valid cursor for value.
func NewCursor(value string) Cursor {
	return Cursor{Value: value, Valid: true}
}

// Done reports whether pagination ends here: no cursor, or an empty one.
func (c Cursor) Done() bool {
	return !c.Valid || c.Value == ""
}

func (c Cursor) String() string {
	if c.Done() {
		return "<end>"
	}
	return c.Value
}

// Page is one decoded page of a collection.
type Page struct {
	// Number is the 1-based position of the page in its cursor chain.
	Number int

	// Items are the records of the page in response order.
	Items []Record

	// Next is the cursor for the following page.
	Next Cursor
}

// PageRequest is the input of one capability call.
type PageRequest struct {
	// Method is the remote method identity, e.g. "conversations.history".
	Method string

	// Args are the fixed arguments of the fetch.
	Args map[string]string

	// Limit is the page size, > 0.
	Limit int

	// Cursor is empty for the first page.
	Cursor string
}

// Extract decodes the items stored under itemsKey and the next cursor.
//
// An array yields one record per element; an object yields a single record;
// null yields an empty page. Non-object elements are wrapped as
// Record{ValueField: element}. An empty itemsKey makes the whole response one
// record. A missing metadata object or next_cursor field ends pagination.
func Extract(raw RawPage, itemsKey string) (Page, error) {
	var page Page

	next, err := extractCursor(raw)
	if err != nil {
		return page, err
	}
	page.Next = next

	if itemsKey == "" {
		record := make(Record, len(raw))
		for key, value := range raw {
			v, err := decode(value)
			if err != nil {
				return page, fmt.Errorf("%w: field %q: %v", ErrMalformedPage, key, err)
			}
			record[key] = v
		}
		page.Items = []Record{record}
		return page, nil
	}

	value, ok := raw[itemsKey]
	if !ok {
		return page, fmt.Errorf("%w: missing %q", ErrMalformedPage, itemsKey)
	}

	decoded, err := decode(value)
	if err != nil {
		return page, fmt.Errorf("%w: %q: %v", ErrMalformedPage, itemsKey, err)
	}

	switch v := decoded.(type) {
	case nil:
		page.Items = []Record{}
	case []any:
		page.Items = make([]Record, 0, len(v))
		for _, item := range v {
			page.Items = append(page.Items, toRecord(item))
		}
	case map[string]any:
		page.Items = []Record{Record(v)}
	default:
		return page, fmt.Errorf("%w: %q is %T, want array or object", ErrMalformedPage, itemsKey, decoded)
	}

	return page, nil
}

func extractCursor(raw RawPage) (Cursor, error) {
	meta, ok := raw[MetadataKey]
	if !ok || isNull(meta) {
		return Cursor{}, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(meta, &m); err != nil {
		return Cursor{}, fmt.Errorf("%w: %s: %v", ErrMalformedPage, MetadataKey, err)
	}
	next, ok := m[NextCursorKey]
	if !ok || isNull(next) {
		return Cursor{}, nil
	}

	var value string
	if err := json.Unmarshal(next, &value); err != nil {
		return Cursor{}, fmt.Errorf("%w: %s: %v", ErrMalformedPage, NextCursorKey, err)
	}
	return NewCursor(value), nil
}

func toRecord(item any) Record {
	if m, ok := item.(map[string]any); ok {
		return Record(m)
	}
	return Record{ValueField: item}
}

// decode keeps numbers as json.Number so ids and timestamps survive unchanged.
func decode(data json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(data json.RawMessage) bool {
	return len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null"
}
