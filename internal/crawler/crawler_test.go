package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops/devopstest"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/logging"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func commit(id, author string, date time.Time) devops.CommitRef {
	return devops.CommitRef{
		CommitID: id,
		Author:   devops.GitUserDate{Name: author, Email: author + "@example.com", Date: date},
		Comment:  "change " + id,
	}
}

func newCrawler(fake *devopstest.Server, mutate func(*config.CrawlConfig)) *Crawler {
	cfg := config.Default().Crawl
	cfg.PageSize = 2
	if mutate != nil {
		mutate(&cfg)
	}
	unlimited := rate.NewLimiter(rate.Inf, 0)
	return New(fake.Client("pat"), cfg, logging.Discard(), WithLimiters(unlimited, unlimited))
}

func lastYear() Window {
	w, _ := ResolveWindow(nil, nil, now, 12)
	return w
}

func TestCrawl_ProjectScopePaginatesAndAnnotates(t *testing.T) {
	fake := devopstest.New(t)
	fake.AddProject("Web",
		devops.Repository{ID: "r1", Name: "site"},
		devops.Repository{ID: "r2", Name: "api"},
	)
	for i := 0; i < 5; i++ {
		fake.AddCommits("r1", commit(fmt.Sprintf("a%d", i), "alice", now.AddDate(0, 0, -i)))
	}
	fake.AddCommits("r2", commit("b0", "bob", now.AddDate(0, 0, -1)))

	commits, err := newCrawler(fake, nil).Crawl(context.Background(), Query{
		Organization: "contoso",
		Project:      "Web",
		Window:       lastYear(),
	})
	require.NoError(t, err)
	require.Len(t, commits, 6)

	// Upstream order within a repository, listed order across repositories
	ids := make([]string, len(commits))
	for i, c := range commits {
		ids[i] = c.CommitID
	}
	assert.Equal(t, []string{"a0", "a1", "a2", "a3", "a4", "b0"}, ids)

	assert.Equal(t, "Web", commits[0].ProjectName)
	assert.Equal(t, "site", commits[0].RepositoryName)
	assert.Equal(t, "r1", commits[0].RepositoryID)
	assert.Equal(t, "api", commits[5].RepositoryName)

	// r1: pages at 0, 2, 4 (short page ends it); r2: one short page
	assert.Equal(t, 4, fake.Calls("commits"))
	var skips []string
	for _, raw := range fake.Queries("commits") {
		v, _ := url.ParseQuery(raw)
		skips = append(skips, v.Get("$skip"))
	}
	assert.Equal(t, []string{"", "2", "4", ""}, skips)
}

func TestCrawl_PassesWindowAndAuthor(t *testing.T) {
	fake := devopstest.New(t)
	fake.AddProject("Web", devops.Repository{ID: "r1", Name: "site"})
	fake.AddCommits("r1",
		commit("in", "alice", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
		commit("other-author", "bob", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)),
		commit("out", "alice", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)),
	)

	year, month := 2024, 3
	window, err := ResolveWindow(&year, &month, now, 12)
	require.NoError(t, err)

	commits, err := newCrawler(fake, nil).Crawl(context.Background(), Query{
		Organization: "contoso",
		Project:      "Web",
		Window:       window,
		Author:       "alice",
	})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "in", commits[0].CommitID)

	sent, _ := url.ParseQuery(fake.Queries("commits")[0])
	assert.Equal(t, "2024-03-01T00:00:00Z", sent.Get("searchCriteria.fromDate"))
	assert.Equal(t, "2024-03-31T23:59:59Z", sent.Get("searchCriteria.toDate"))
	assert.Equal(t, "alice", sent.Get("searchCriteria.author"))
}

func TestCrawl_OrganizationSamplesProjects(t *testing.T) {
	fake := devopstest.New(t)
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("P%d", i)
		repoID := fmt.Sprintf("r%d", i)
		fake.AddProject(name, devops.Repository{ID: repoID, Name: "repo" + name})
		fake.AddCommits(repoID, commit("c"+name, "alice", now))
	}

	commits, err := newCrawler(fake, func(c *config.CrawlConfig) { c.MaxProjects = 2 }).
		Crawl(context.Background(), Query{Organization: "contoso", Window: lastYear()})
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "P0", commits[0].ProjectName)
	assert.Equal(t, "P1", commits[1].ProjectName)
}

func TestCrawl_RepositoryFailureIsSkipped(t *testing.T) {
	fake := devopstest.New(t)
	fake.AddProject("Web",
		devops.Repository{ID: "r1", Name: "site"},
		devops.Repository{ID: "r2", Name: "broken"},
		devops.Repository{ID: "r3", Name: "docs"},
	)
	fake.AddCommits("r1", commit("a", "alice", now))
	fake.AddCommits("r2", commit("b", "bob", now))
	fake.AddCommits("r3", commit("c", "carol", now))
	fake.FailPath("repositories/r2/commits", http.StatusInternalServerError)

	commits, err := newCrawler(fake, nil).Crawl(context.Background(), Query{
		Organization: "contoso",
		Project:      "Web",
		Window:       lastYear(),
	})
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "a", commits[0].CommitID)
	assert.Equal(t, "c", commits[1].CommitID)
}

func TestCrawl_ProjectFailureIsSkippedOrganizationWide(t *testing.T) {
	fake := devopstest.New(t)
	fake.AddProject("Good", devops.Repository{ID: "r1", Name: "site"})
	fake.AddProject("Bad", devops.Repository{ID: "r2", Name: "api"})
	fake.AddCommits("r1", commit("a", "alice", now))
	fake.FailPath("/Bad/_apis/git/repositories", http.StatusInternalServerError)

	commits, err := newCrawler(fake, nil).Crawl(context.Background(), Query{Organization: "contoso", Window: lastYear()})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "Good", commits[0].ProjectName)
}

func TestCrawl_AuthorizationFailurePropagates(t *testing.T) {
	fake := devopstest.New(t)
	fake.AddProject("Web", devops.Repository{ID: "r1", Name: "site"})
	fake.Fail("commits", http.StatusUnauthorized)

	_, err := newCrawler(fake, nil).Crawl(context.Background(), Query{
		Organization: "contoso",
		Project:      "Web",
		Window:       lastYear(),
	})
	require.Error(t, err)
	assert.True(t, errors.IsAuthorization(err))
}

func TestCrawl_ForbiddenProjectOrganizationWidePropagates(t *testing.T) {
	fake := devopstest.New(t)
	fake.AddProject("Web", devops.Repository{ID: "r1", Name: "site"})
	fake.Fail("repositories", http.StatusForbidden)

	_, err := newCrawler(fake, nil).Crawl(context.Background(), Query{Organization: "contoso", Window: lastYear()})
	assert.True(t, errors.IsAuthorization(err))
}

func TestCrawl_PrimaryPathFailuresPropagate(t *testing.T) {
	t.Run("listing projects", func(t *testing.T) {
		fake := devopstest.New(t)
		fake.Fail("projects", http.StatusInternalServerError)

		_, err := newCrawler(fake, nil).Crawl(context.Background(), Query{Organization: "contoso", Window: lastYear()})
		assert.Error(t, err)
	})

	t.Run("unknown project", func(t *testing.T) {
		fake := devopstest.New(t)

		_, err := newCrawler(fake, nil).Crawl(context.Background(), Query{
			Organization: "contoso",
			Project:      "Missing",
			Window:       lastYear(),
		})
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestCrawl_CancelledContext(t *testing.T) {
	fake := devopstest.New(t)
	fake.AddProject("Web", devops.Repository{ID: "r1", Name: "site"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCrawler(fake, nil).Crawl(ctx, Query{Organization: "contoso", Project: "Web", Window: lastYear()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveWindow(t *testing.T) {
	year, month := 2024, 2
	w, err := ResolveWindow(&year, &month, now, 12)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), w.To, "leap year February")

	december := 12
	w, err = ResolveWindow(&year, &december, now, 12)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), w.To)

	w, err = ResolveWindow(nil, nil, now, 12)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, now, w.To)

	// A lone year falls back to the default window
	w, err = ResolveWindow(&year, nil, now, 12)
	require.NoError(t, err)
	assert.Equal(t, now, w.To)

	bad := 13
	_, err = ResolveWindow(&year, &bad, now, 12)
	assert.True(t, errors.IsValidation(err))
}

func TestWindowHelpers(t *testing.T) {
	m := CurrentMonth(now)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), m.From)
	assert.Equal(t, time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC), m.To)

	d := LastDays(now, 30)
	assert.Equal(t, now.AddDate(0, 0, -30), d.From)
}
