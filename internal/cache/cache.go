// Package cache memoizes computed results keyed by normalized query
// parameters. The store is injected into every component that needs it.
package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Cache is a concurrency-safe, TTL-aware result store
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
	Len() int
	Flush()
}

// AllProjects stands in for an omitted project in keys
const AllProjects = "ALL"

const keySeparator = "|"

// Key builds the composite cache key for one operation. Every parameter takes
// a fixed slot, so changing any of them yields a different key. Nil optional
// parts render as empty slots.
func Key(operation, organization, project string, parts ...any) string {
	if project == "" {
		project = AllProjects
	}

	fields := make([]string, 0, 3+len(parts))
	fields = append(fields, operation, strings.ToLower(organization), project)
	for _, p := range parts {
		fields = append(fields, part(p))
	}
	return strings.Join(fields, keySeparator)
}

// Fingerprint returns a short, non-reversible tag for an access token so
// entries computed with different credentials are never shared
func Fingerprint(token string) string {
	return strconv.FormatUint(xxhash.Sum64String(token), 16)
}

func part(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case int:
		return strconv.Itoa(x)
	case *int:
		if x == nil {
			return ""
		}
		return strconv.Itoa(*x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
