package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies one cached collection.
type Key struct {
	// Prefix scopes the key, e.g. per workspace. Empty means unscoped.
	Prefix string

	// Method is the Web API method, e.g. "users.list".
	Method string

	// Args are the fixed request arguments.
	Args map[string]string
}

// String generates a deterministic Redis key.
// Format: slack:cache[:prefix]:method[:arg=value...]
//
// Example:
//
//	slack:cache:T0123:conversations.list:types=im
func (k Key) String() string {
	parts := []string{"slack", "cache"}

	if k.Prefix != "" {
		parts = append(parts, k.Prefix)
	}
	parts = append(parts, k.Method)

	if len(k.Args) > 0 {
		keys := make([]string, 0, len(k.Args))
		for key := range k.Args {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Args[key]))
		}
	}

	return strings.Join(parts, ":")
}
