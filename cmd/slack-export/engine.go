package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/slack-exporter/pkg/cache"
	"github.com/Sternrassler/slack-exporter/pkg/pagination"
	"github.com/Sternrassler/slack-exporter/pkg/ratelimit"
	"github.com/Sternrassler/slack-exporter/pkg/retry"
	"github.com/Sternrassler/slack-exporter/pkg/slack"
	"github.com/Sternrassler/slack-exporter/pkg/users"
)

// engine is the fetch stack shared by the subcommands.
type engine struct {
	fetcher  *pagination.Fetcher
	users    *users.Loader
	redis    *redis.Client
	progress *progress
}

// newEngine wires the Slack client, governor, retry policy and user loader.
func (a *app) newEngine(ctx context.Context) (*engine, error) {
	token, err := a.cfg.Token()
	if err != nil {
		return nil, err
	}

	slackCfg := slack.DefaultConfig(token)
	slackCfg.BaseURL = a.cfg.APIURL
	client, err := slack.New(slackCfg)
	if err != nil {
		return nil, fmt.Errorf("create slack client: %w", err)
	}

	eng := &engine{progress: newProgress(a.errOut)}

	governorOpts := []ratelimit.Option{ratelimit.WithProgress(eng.progress.throttle)}
	var cacheManager *cache.Manager
	if a.cfg.Redis.Addr != "" {
		eng.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr})
		if err := eng.redis.Ping(ctx).Err(); err != nil {
			_ = eng.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
		}
		a.logger.Info().Str("addr", a.cfg.Redis.Addr).Msg("Connected to Redis")

		governorOpts = append(governorOpts, ratelimit.WithStore(ratelimit.NewRedisStore(eng.redis, a.keyPrefix())))
		cacheManager = cache.NewManager(eng.redis)
	}

	governor := ratelimit.NewGovernor(ratelimit.Config{
		Limit: a.cfg.RateLimit,
		Wait:  a.cfg.Wait(),
	}, governorOpts...)

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = a.cfg.MaxAttempts
	policy.Delay = a.cfg.Delay()
	policy.OnWait = eng.progress.retry

	eng.fetcher = pagination.NewFetcher(client, governor, pagination.Config{
		PageSize: a.cfg.PageSize,
		Retry:    policy,
	})
	eng.users = users.NewLoader(eng.fetcher, cacheManager, users.Config{
		File:        a.cfg.UsersFile,
		CacheTTL:    a.cfg.Redis.UserCacheTTL,
		CachePrefix: a.cfg.Redis.KeyPrefix,
	})

	return eng, nil
}

// keyPrefix scopes the shared call counter. Without a configured prefix every
// run counts on its own.
func (a *app) keyPrefix() string {
	if a.cfg.Redis.KeyPrefix != "" {
		return a.cfg.Redis.KeyPrefix
	}
	return a.runID
}

func (e *engine) Close() error {
	e.progress.done()
	if e.redis != nil {
		return e.redis.Close()
	}
	return nil
}
