// Package cache stores snapshots of Slack collections in Redis.
//
// Fetching the user directory of a large workspace costs one users.list page
// per 200 users against the same rate budget as the export itself. The cache
// keeps the last result per request so repeated runs, or several exporter
// processes, can skip the fetch while the snapshot is fresh.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{Method: "users.list"}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch and store
//		entry, _ = cache.NewEntry(names, 24*time.Hour)
//		_ = manager.Set(ctx, key, entry)
//	}
//
//	var names map[string]string
//	_ = entry.Decode(&names)
//
// # Metrics
//
//   - slack_cache_hits_total{method} - Cache hits
//   - slack_cache_misses_total{method} - Cache misses
//   - slack_cache_written_bytes_total - Bytes written to the cache
//   - slack_cache_errors_total{operation} - Cache operation errors
package cache
