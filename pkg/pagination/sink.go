package pagination

import (
	"context"
)

// missing marks a projected field that the record did not have.
type missing struct{}

func (missing) String() string { return "None" }

// MarshalJSON renders the marker as null.
func (missing) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Missing is substituted for projected fields absent from a record.
var Missing any = missing{}

// IsMissing reports whether v is the Missing marker.
func IsMissing(v any) bool {
	_, ok := v.(missing)
	return ok
}

// Sink consumes pages in arrival order.
type Sink interface {
	Consume(ctx context.Context, page Page) error
}

// PageHandler handles one page in streaming mode.
type PageHandler func(ctx context.Context, page Page) error

// SinkOption shapes the records a sink receives.
type SinkOption func(*shaper)

// WithProjection keeps only the given fields (dotted paths allowed) of each
// record. Absent fields are set to Missing.
func WithProjection(fields ...string) SinkOption {
	return func(s *shaper) { s.fields = append(s.fields, fields...) }
}

// WithFilter keeps only the records for which keep returns true. Filters see
// the full record, before projection.
func WithFilter(keep func(Record) bool) SinkOption {
	return func(s *shaper) { s.filters = append(s.filters, keep) }
}

type shaper struct {
	fields  []string
	filters []func(Record) bool
}

func newShaper(opts []SinkOption) shaper {
	var s shaper
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s shaper) shape(page Page) Page {
	if len(s.fields) == 0 && len(s.filters) == 0 {
		return page
	}

	items := make([]Record, 0, len(page.Items))
	for _, record := range page.Items {
		if !s.keep(record) {
			continue
		}
		items = append(items, s.project(record))
	}
	page.Items = items
	return page
}

func (s shaper) keep(record Record) bool {
	for _, keep := range s.filters {
		if !keep(record) {
			return false
		}
	}
	return true
}

func (s shaper) project(record Record) Record {
	if len(s.fields) == 0 {
		return record
	}
	out := make(Record, len(s.fields))
	for _, field := range s.fields {
		if v, ok := record.Lookup(field); ok {
			out[field] = v
		} else {
			out[field] = Missing
		}
	}
	return out
}

// Accumulator collects every record of a fetch in arrival order.
type Accumulator struct {
	shaper  shaper
	records []Record
}

// NewAccumulator creates an accumulating sink.
func NewAccumulator(opts ...SinkOption) *Accumulator {
	return &Accumulator{
		shaper:  newShaper(opts),
		records: []Record{},
	}
}

// Consume appends the page's records.
func (a *Accumulator) Consume(_ context.Context, page Page) error {
	page = a.shaper.shape(page)
	a.records = append(a.records, page.Items...)
	return nil
}

// Records returns everything collected so far.
func (a *Accumulator) Records() []Record {
	return a.records
}

// StreamSink hands each page to a handler as soon as it arrives, so only one
// page is held in memory at a time.
type StreamSink struct {
	shaper  shaper
	handler PageHandler
}

// NewStreamSink creates a streaming sink.
func NewStreamSink(handler PageHandler, opts ...SinkOption) *StreamSink {
	return &StreamSink{
		shaper:  newShaper(opts),
		handler: handler,
	}
}

// Consume shapes the page and calls the handler.
func (s *StreamSink) Consume(ctx context.Context, page Page) error {
	return s.handler(ctx, s.shaper.shape(page))
}
