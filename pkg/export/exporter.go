// Package export writes Slack conversations, messages, reactions and members
// to CSV files.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/slack-exporter/pkg/pagination"
	"github.com/Sternrassler/slack-exporter/pkg/slack"
)

var slackExportRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "slack_export_rows_total",
	Help: "Total CSV rows written by kind",
}, []string{"kind"})

// Names resolves a user id to a user name.
type Names func(ctx context.Context, id string) string

// Options selects what an export writes.
type Options struct {
	Messages  bool
	Reactions bool
	Members   bool

	// Graph writes one member row per ordered pair of members.
	Graph bool

	// FetchReactions calls reactions.get for every message that has reactions
	// instead of using the reactions embedded in the history.
	FetchReactions bool

	// Oldest and Latest bound the message history. Zero means unbounded.
	Oldest time.Time
	Latest time.Time

	// Single names the files after the conversation instead of "all".
	Single bool
}

// Config holds exporter configuration.
type Config struct {
	// DataFolder is the root of all exports.
	DataFolder string

	// Workers is the number of conversations exported at once.
	Workers int

	// Location formats message datetimes.
	Location *time.Location
}

// DefaultConfig returns the default export configuration.
func DefaultConfig() Config {
	return Config{
		DataFolder: "slack_export",
		Workers:    pagination.DefaultWorkers,
		Location:   time.Local,
	}
}

// Result summarizes an export.
type Result struct {
	Conversations int
	Failed        int
	Messages      int
	Reactions     int
	Members       int
	Files         []string
	Duration      time.Duration
}

// Exporter drives the fetcher over conversations and writes CSV rows.
type Exporter struct {
	fetcher *pagination.Fetcher
	names   Names
	config  Config
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates an exporter. names may be nil, in which case every user name is None.
func New(fetcher *pagination.Fetcher, names Names, cfg Config) *Exporter {
	if cfg.DataFolder == "" {
		cfg.DataFolder = DefaultConfig().DataFolder
	}
	if cfg.Workers <= 0 {
		cfg.Workers = pagination.DefaultWorkers
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if names == nil {
		names = func(context.Context, string) string { return None }
	}
	return &Exporter{
		fetcher: fetcher,
		names:   names,
		config:  cfg,
		now:     time.Now,
		logger:  log.With().Str("component", "exporter").Logger(),
	}
}

// SetLogger replaces the exporter's logger.
func (e *Exporter) SetLogger(logger zerolog.Logger) {
	e.logger = logger
}

// SetNow replaces the clock used to stamp export folders.
func (e *Exporter) SetNow(now func() time.Time) {
	e.now = now
}

// Conversations lists the conversations of the given types.
func (e *Exporter) Conversations(ctx context.Context, types []string) ([]pagination.Record, error) {
	records, stats, err := e.fetcher.FetchAll(ctx, slack.ConversationsList{Types: types}.Request())
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	e.logger.Info().
		Int("conversations", len(records)).
		Int("pages", stats.Pages).
		Msg("Conversations listed")
	return records, nil
}

// outputs holds the open files of one export.
type outputs struct {
	members   *File
	messages  *File
	reactions *File
}

func (o *outputs) files() []*File {
	var out []*File
	for _, f := range []*File{o.members, o.messages, o.reactions} {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (e *Exporter) open(layout Layout, opts Options) (*outputs, error) {
	out := &outputs{}
	var err error

	if opts.Members {
		header := MembersHeader
		if opts.Graph {
			header = GraphHeader
		}
		if out.members, err = CreateFile(layout.Path(KindMembers), header); err != nil {
			return out, err
		}
	}
	if opts.Messages {
		if out.messages, err = CreateFile(layout.Path(KindMessages), MessagesHeader); err != nil {
			return out, err
		}
	}
	if opts.Reactions {
		if out.reactions, err = CreateFile(layout.Path(KindReactions), ReactionsHeader); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Export writes the selected data of conversations. A conversation that fails
// does not stop the others; the failures are returned joined. An auth error
// stops the whole export.
func (e *Exporter) Export(ctx context.Context, conversations []pagination.Record, opts Options) (Result, error) {
	began := time.Now()
	result := Result{Conversations: len(conversations)}

	if !opts.Messages && !opts.Members {
		return result, errors.New("nothing to export: enable messages or members")
	}
	if opts.Reactions && !opts.Messages {
		return result, errors.New("reactions are exported with messages")
	}

	single := ""
	if opts.Single && len(conversations) == 1 {
		single = ConversationName(conversations[0], e.syncNames(ctx))
	}
	layout := NewLayout(e.config.DataFolder, e.now(), single)

	out, err := e.open(layout, opts)
	defer func() {
		for _, f := range out.files() {
			if cerr := f.Close(); cerr != nil {
				e.logger.Error().Err(cerr).Str("file", f.Path()).Msg("Failed to close export file")
				continue
			}
			e.logger.Debug().Str("file", f.Path()).Int("rows", f.Rows()).Msg("Export file closed")
		}
	}()
	if err != nil {
		return result, err
	}

	e.logger.Info().
		Int("conversations", len(conversations)).
		Str("dir", layout.Dir).
		Bool("messages", opts.Messages).
		Bool("reactions", opts.Reactions).
		Bool("members", opts.Members).
		Bool("graph", opts.Graph).
		Msg("Export started")

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var members [][][]string
	if opts.Members {
		members = make([][][]string, len(conversations))
	}
	var messages, reactions atomic.Int64

	errs := pagination.ForEach(ctx, conversations, e.config.Workers, func(ctx context.Context, i int, c pagination.Record) error {
		info := NewInfo(c, e.syncNames(ctx))
		label := fmt.Sprintf("%d/%d %s", i+1, len(conversations), info.Name)

		if opts.Members {
			rows, err := e.memberRows(ctx, info, label, opts.Graph)
			if err != nil {
				return e.fail(cancel, info, err)
			}
			members[i] = rows
		}
		if opts.Messages {
			m, r, err := e.exportMessages(ctx, info, label, opts, out)
			messages.Add(int64(m))
			reactions.Add(int64(r))
			if err != nil {
				return e.fail(cancel, info, err)
			}
		}
		return nil
	})

	// Member rows are written in conversation order once every fetch is done.
	for _, rows := range members {
		if err := out.members.WriteRows(rows); err != nil {
			errs = append(errs, err)
			break
		}
		result.Members += len(rows)
	}
	slackExportRowsTotal.WithLabelValues(KindMembers).Add(float64(result.Members))

	result.Messages = int(messages.Load())
	result.Reactions = int(reactions.Load())
	for _, f := range out.files() {
		result.Files = append(result.Files, f.Path())
	}

	// After an auth error the cancelled conversations only repeat it.
	cause := context.Cause(ctx)
	aborted := cause != nil && !errors.Is(cause, context.Canceled)

	var failures []error
	for _, err := range errs {
		if err == nil || (aborted && errors.Is(err, context.Canceled)) {
			continue
		}
		failures = append(failures, err)
	}
	result.Failed = len(failures)
	result.Duration = time.Since(began)

	event := e.logger.Info()
	if len(failures) > 0 {
		event = e.logger.Warn()
	}
	event.
		Int("conversations", result.Conversations).
		Int("failed", result.Failed).
		Int("messages", result.Messages).
		Int("reactions", result.Reactions).
		Int("members", result.Members).
		Dur("duration", result.Duration).
		Strs("files", result.Files).
		Msg("Export completed")

	return result, errors.Join(failures...)
}

// fail wraps a conversation error. Auth errors cancel the remaining work.
func (e *Exporter) fail(cancel context.CancelCauseFunc, info Info, err error) error {
	if slack.IsAuthError(err) {
		cancel(err)
	}
	return fmt.Errorf("conversation %s (%s): %w", info.Name, info.ID, err)
}

func (e *Exporter) syncNames(ctx context.Context) func(string) string {
	return func(id string) string { return e.names(ctx, id) }
}

func (e *Exporter) memberRows(ctx context.Context, info Info, label string, graph bool) ([][]string, error) {
	req := slack.ConversationsMembers{Channel: info.ID}.Request()
	req.Label = label

	records, _, err := e.fetcher.FetchAll(ctx, req)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id := r.String(pagination.ValueField); id != "" {
			ids = append(ids, id)
		}
	}
	return MemberRows(info, ids, e.syncNames(ctx), graph), nil
}

// exportMessages streams the history of one conversation page by page.
func (e *Exporter) exportMessages(ctx context.Context, info Info, label string, opts Options, out *outputs) (int, int, error) {
	params := slack.ConversationsHistory{Channel: info.ID}
	if !opts.Oldest.IsZero() {
		params.Oldest = TimeToTS(opts.Oldest)
		params.Inclusive = true
	}
	if !opts.Latest.IsZero() {
		params.Latest = TimeToTS(opts.Latest)
	}
	req := params.Request()
	req.Label = label

	names := e.syncNames(ctx)
	var messages, reactions int

	_, err := e.fetcher.Stream(ctx, req, func(ctx context.Context, page pagination.Page) error {
		rows := make([][]string, 0, len(page.Items))
		for _, msg := range page.Items {
			rows = append(rows, MessageRow(info, msg, names, e.config.Location))
		}
		if err := out.messages.WriteRows(rows); err != nil {
			return err
		}
		messages += len(rows)
		slackExportRowsTotal.WithLabelValues(KindMessages).Add(float64(len(rows)))

		if !opts.Reactions || out.reactions == nil {
			return nil
		}

		var reactionRows [][]string
		for _, msg := range page.Items {
			if opts.FetchReactions {
				full, err := e.fetchReactions(ctx, info, msg)
				switch {
				case err != nil && (slack.IsAuthError(err) || ctx.Err() != nil):
					return err
				case err != nil:
					e.logger.Warn().
						Err(err).
						Str("label", label).
						Str("ts", msg.String("ts")).
						Msg("Reaction lookup failed - using reactions from history")
				default:
					msg = full
				}
			}
			reactionRows = append(reactionRows, ReactionRows(info, msg, names, e.config.Location)...)
		}
		if err := out.reactions.WriteRows(reactionRows); err != nil {
			return err
		}
		reactions += len(reactionRows)
		slackExportRowsTotal.WithLabelValues(KindReactions).Add(float64(len(reactionRows)))
		return nil
	})
	return messages, reactions, err
}

// fetchReactions replaces msg with the reactions.get view of it when msg has
// reactions.
func (e *Exporter) fetchReactions(ctx context.Context, info Info, msg pagination.Record) (pagination.Record, error) {
	if _, ok := msg["reactions"]; !ok {
		return msg, nil
	}
	ts := msg.String("ts")
	records, _, err := e.fetcher.FetchAll(ctx, slack.ReactionsGet{Channel: info.ID, Timestamp: ts}.Request())
	if err != nil {
		return nil, fmt.Errorf("reactions of %s: %w", ts, err)
	}
	if len(records) == 0 {
		return msg, nil
	}
	return records[0], nil
}
