// Package pagination drives cursor-based pagination against a rate-limited API.
//
// A Fetcher repeatedly consults the shared ratelimit.Governor, calls its
// Capability for one page (retrying through a retry.Policy), extracts the
// records and the next cursor, and hands the page to a Sink. The chain ends when
// a response carries no cursor or an empty one. Pages within one chain are
// strictly sequential; independent chains can run concurrently with ForEach.
//
// Example usage:
//
//	governor := ratelimit.NewGovernor(ratelimit.DefaultConfig())
//	fetcher := pagination.NewFetcher(slackClient, governor, pagination.DefaultConfig())
//
//	// accumulate
//	channels, _, err := fetcher.FetchAll(ctx, pagination.Request{
//		Method:   "conversations.list",
//		ItemsKey: "channels",
//	}, pagination.WithProjection("id", "name"))
//
//	// stream
//	_, err = fetcher.Stream(ctx, req, func(ctx context.Context, page pagination.Page) error {
//		return writer.Write(page.Items)
//	})
//
// Sinks:
//   - Accumulator collects every record in arrival order
//   - StreamSink calls a handler per page, holding one page in memory
//   - WithProjection keeps selected fields, substituting Missing when absent
//   - WithFilter keeps records matching a predicate
package pagination
