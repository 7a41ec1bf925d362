package devops

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// PageFunc fetches the page starting at skip holding at most top items
type PageFunc[T any] func(ctx context.Context, skip, top int) ([]T, error)

// Paginate walks an offset/limit listing in increasing skip order until a
// page comes back empty or shorter than pageSize. limiter, when set, is
// waited on before every page after the first. On error the items gathered
// so far are returned alongside it.
func Paginate[T any](ctx context.Context, pageSize int, limiter *rate.Limiter, fetch PageFunc[T]) ([]T, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("paginate: page size must be positive, got %d", pageSize)
	}

	var all []T
	for skip := 0; ; skip += pageSize {
		if skip > 0 && limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return all, fmt.Errorf("page limiter: %w", err)
			}
		}

		page, err := fetch(ctx, skip, pageSize)
		if err != nil {
			return all, err
		}
		all = append(all, page...)

		if len(page) < pageSize {
			return all, nil
		}
	}
}
