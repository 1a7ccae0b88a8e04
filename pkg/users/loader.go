package users

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/slack-exporter/pkg/cache"
	"github.com/Sternrassler/slack-exporter/pkg/pagination"
	"github.com/Sternrassler/slack-exporter/pkg/retry"
	"github.com/Sternrassler/slack-exporter/pkg/slack"
)

// Source tells where a directory came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceFile  Source = "file"
	SourceAPI   Source = "api"
)

// Config holds loader configuration.
type Config struct {
	// File is the users CSV. Empty disables the file.
	File string

	// CacheTTL is how long a fetched directory stays in Redis.
	CacheTTL time.Duration

	// CachePrefix scopes the Redis key.
	CachePrefix string
}

// DefaultConfig returns the default users file and a 24h cache.
func DefaultConfig() Config {
	return Config{
		File:     "slack_users_list.csv",
		CacheTTL: 24 * time.Hour,
	}
}

// Loader builds the user directory from the cheapest available source.
type Loader struct {
	fetcher *pagination.Fetcher
	cache   *cache.Manager
	config  Config
	logger  zerolog.Logger

	lookups singleflight.Group
	mu      sync.Mutex
	misses  map[string]struct{}
}

// NewLoader creates a loader. cacheManager may be nil.
func NewLoader(fetcher *pagination.Fetcher, cacheManager *cache.Manager, cfg Config) *Loader {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	return &Loader{
		fetcher: fetcher,
		cache:   cacheManager,
		config:  cfg,
		logger:  log.With().Str("component", "users").Logger(),
		misses:  make(map[string]struct{}),
	}
}

// SetLogger replaces the loader's logger.
func (l *Loader) SetLogger(logger zerolog.Logger) {
	l.logger = logger
}

func (l *Loader) cacheKey() cache.Key {
	return cache.Key{Prefix: l.config.CachePrefix, Method: slack.MethodUsersList}
}

// Load returns the directory from Redis, then the users file, and only
// fetches users.list when neither has it.
func (l *Loader) Load(ctx context.Context) (*Directory, Source, error) {
	if l.cache != nil {
		entry, err := l.cache.Get(ctx, l.cacheKey())
		switch {
		case err == nil:
			var names map[string]string
			if err := entry.Decode(&names); err == nil {
				l.logger.Info().
					Int("users", len(names)).
					Dur("age", entry.Age()).
					Msg("User directory loaded from cache")
				return NewDirectory(names), SourceCache, nil
			}
			l.logger.Warn().Err(err).Msg("Cached user directory unreadable")
		case !errors.Is(err, cache.ErrCacheMiss):
			l.logger.Warn().Err(err).Msg("User cache unavailable")
		}
	}

	if l.config.File != "" {
		dir, err := LoadFile(l.config.File)
		switch {
		case err == nil:
			l.logger.Info().
				Str("file", l.config.File).
				Int("users", dir.Len()).
				Msg("User directory loaded from file")
			return dir, SourceFile, nil
		case errors.Is(err, fs.ErrNotExist):
		default:
			l.logger.Warn().Err(err).Str("file", l.config.File).Msg("Users file unreadable")
		}
	}

	dir, err := l.Refresh(ctx)
	if err != nil {
		return nil, "", err
	}
	return dir, SourceAPI, nil
}

// Refresh fetches users.list and rewrites the users file and the cache.
func (l *Loader) Refresh(ctx context.Context) (*Directory, error) {
	records, stats, err := l.fetcher.FetchAll(ctx, slack.UsersList{}.Request(),
		pagination.WithProjection("id", "name"))
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	names := make(map[string]string, len(records))
	for _, record := range records {
		id := record.String("id")
		if id == "" {
			continue
		}
		names[id] = record.String("name")
	}
	dir := NewDirectory(names)

	l.logger.Info().
		Int("users", dir.Len()).
		Int("pages", stats.Pages).
		Dur("duration", stats.Duration).
		Msg("User directory downloaded")

	if l.config.File != "" {
		if err := SaveFile(l.config.File, dir); err != nil {
			l.logger.Warn().Err(err).Str("file", l.config.File).Msg("Failed to write users file")
		}
	}
	l.store(ctx, dir)

	return dir, nil
}

func (l *Loader) store(ctx context.Context, dir *Directory) {
	if l.cache == nil {
		return
	}
	entry, err := cache.NewEntry(dir.Snapshot(), l.config.CacheTTL)
	if err == nil {
		err = l.cache.Set(ctx, l.cacheKey(), entry)
	}
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to cache user directory")
	}
}

// Resolve returns the name of id, asking users.info when the directory does
// not know it. Concurrent lookups of one id share a single request. Ids that
// users.info rejects for good are remembered and not asked again. Lookups
// that fail leave the directory unchanged and return Unknown.
func (l *Loader) Resolve(ctx context.Context, dir *Directory, id string) string {
	if id == "" {
		return Unknown
	}
	if name, ok := dir.Lookup(id); ok {
		return name
	}
	if l.missed(id) {
		return Unknown
	}

	name, _, _ := l.lookups.Do(id, func() (any, error) {
		if name, ok := dir.Lookup(id); ok {
			return name, nil
		}
		if l.missed(id) {
			return Unknown, nil
		}
		records, _, err := l.fetcher.FetchAll(ctx, slack.UsersInfo{User: id}.Request())
		if err != nil {
			l.logger.Debug().Err(err).Str("user", id).Msg("User lookup failed")
			if retry.DefaultClassifier(err) == retry.Fatal {
				l.remember(id)
			}
			return Unknown, nil
		}
		if len(records) == 0 {
			l.remember(id)
			return Unknown, nil
		}
		name := records[0].String("name")
		dir.Set(id, name)
		return name, nil
	})
	return name.(string)
}

func (l *Loader) missed(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.misses[id]
	return ok
}

func (l *Loader) remember(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.misses[id] = struct{}{}
}
