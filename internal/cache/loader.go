package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/logging"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/telemetry"
)

// Loader fronts a Cache with single-flight loading: concurrent misses on the
// same key share one computation.
type Loader struct {
	cache   Cache
	group   singleflight.Group
	metrics *telemetry.Metrics
	logger  logrus.FieldLogger
}

// NewLoader wraps c. metrics and logger may be nil.
func NewLoader(c Cache, metrics *telemetry.Metrics, logger logrus.FieldLogger) *Loader {
	return &Loader{
		cache:   c,
		metrics: metrics,
		logger:  logging.Component(logger, "cache"),
	}
}

// Cache returns the underlying store
func (l *Loader) Cache() Cache {
	return l.cache
}

// Load returns the cached value for key or computes, stores and returns it.
// Errors are never cached. Callers waiting on an in-flight load receive its
// result; when that flight was cancelled by its own caller, a waiter whose
// context is still live loads again.
func Load[T any](ctx context.Context, l *Loader, operation, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := l.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			l.metrics.ObserveCache(operation, true)
			l.logger.WithField("key", key).Debug("cache hit")
			return typed, nil
		}
		l.logger.WithField("key", key).Warn("cached value has unexpected type, reloading")
	}
	l.metrics.ObserveCache(operation, false)

	for {
		v, err, shared := l.group.Do(key, func() (any, error) {
			// Another flight may have stored it between our miss and now
			if v, ok := l.cache.Get(key); ok {
				if typed, ok := v.(T); ok {
					return typed, nil
				}
			}

			result, err := fn(ctx)
			if err != nil {
				return nil, err
			}
			l.cache.Set(key, result, ttl)
			return result, nil
		})
		if err != nil {
			if shared && ctx.Err() == nil && isContextError(err) {
				l.logger.WithField("key", key).Debug("shared load cancelled by another caller, retrying")
				continue
			}
			return zero, err
		}

		typed, ok := v.(T)
		if !ok {
			return zero, fmt.Errorf("cache: value for %q has type %T", key, v)
		}

		l.logger.WithFields(logrus.Fields{
			"key":    key,
			"shared": shared,
		}).Debug("cache filled")
		return typed, nil
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
