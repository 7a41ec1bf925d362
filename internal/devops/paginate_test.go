package devops_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
)

func TestPaginate_StopsOnShortPage(t *testing.T) {
	var skips []int
	items, err := devops.Paginate(context.Background(), 3, nil, func(_ context.Context, skip, top int) ([]int, error) {
		skips = append(skips, skip)
		assert.Equal(t, 3, top)
		if skip >= 6 {
			return []int{skip}, nil
		}
		return []int{skip, skip + 1, skip + 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, skips, "pages must be fetched in increasing offset order")
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, items)
}

func TestPaginate_StopsOnEmptyPage(t *testing.T) {
	calls := 0
	items, err := devops.Paginate(context.Background(), 2, nil, func(_ context.Context, skip, _ int) ([]string, error) {
		calls++
		if skip == 0 {
			return []string{"a", "b"}, nil
		}
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"a", "b"}, items)
}

func TestPaginate_ReturnsGatheredItemsOnError(t *testing.T) {
	boom := fmt.Errorf("page 2 failed")
	items, err := devops.Paginate(context.Background(), 1, nil, func(_ context.Context, skip, _ int) ([]int, error) {
		if skip == 1 {
			return nil, boom
		}
		return []int{skip}, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{0}, items)
}

func TestPaginate_WaitsBetweenPages(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(20*time.Millisecond), 1)

	start := time.Now()
	_, err := devops.Paginate(context.Background(), 1, limiter, func(_ context.Context, skip, _ int) ([]int, error) {
		if skip < 3 {
			return []int{skip}, nil
		}
		return nil, nil
	})
	require.NoError(t, err)

	// Four pages, three waits after the first; the first wait uses the burst token
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestPaginate_RejectsBadPageSize(t *testing.T) {
	_, err := devops.Paginate(context.Background(), 0, nil, func(context.Context, int, int) ([]int, error) {
		return nil, nil
	})
	assert.Error(t, err)
}
