package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/cache"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/crawler"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/logging"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/telemetry"
)

// Sub-query names used in logs and failure metrics
const (
	SubqueryBuilds        = "builds"
	SubqueryPullRequests  = "pull_requests"
	SubqueryWorkItems     = "work_items"
	SubqueryRepositories  = "repositories"
	SubqueryCoverage      = "coverage"
	SubqueryCommitsPerDay = "commits_per_day"
	SubqueryDevelopers    = "active_developers"
)

const (
	operationWindow  = "window"
	defaultWindowTTL = 5 * time.Minute
)

// Source is the subset of the API the aggregator reads
type Source interface {
	ListProjects(ctx context.Context, org string) ([]devops.Project, error)
	ListRepositories(ctx context.Context, org, project string) ([]devops.Repository, error)
	ListCommits(ctx context.Context, org, project, repoID string, q devops.CommitQuery) ([]devops.CommitRef, error)
	ListBuilds(ctx context.Context, org, project string, q devops.BuildQuery) ([]devops.Build, error)
	ListPullRequests(ctx context.Context, org, project, repoID string, q devops.PullRequestQuery) ([]devops.PullRequest, error)
	QueryWorkItems(ctx context.Context, org, project, wiql string) ([]devops.WorkItemRef, error)
	GetWorkItems(ctx context.Context, org, project string, ids []int, fields []string) ([]devops.WorkItem, error)
	GetCodeCoverage(ctx context.Context, org, project string, buildID int) ([]devops.CoverageData, error)
}

// CommitSource crawls the commits of a window
type CommitSource interface {
	Crawl(ctx context.Context, q crawler.Query) ([]devops.CommitRef, error)
}

// Aggregator computes GeneralStats for one caller
type Aggregator struct {
	source    Source
	commits   CommitSource
	loader    *cache.Loader
	cfg       config.StatsConfig
	scope     string
	windowTTL time.Duration
	metrics   *telemetry.Metrics
	logger    logrus.FieldLogger
	now       func() time.Time
	spacing   func(time.Duration) *rate.Limiter
}

// Option customizes an Aggregator
type Option func(*Aggregator)

// WithScope tags shared cache entries, typically with a token fingerprint
func WithScope(scope string) Option {
	return func(a *Aggregator) { a.scope = scope }
}

// WithWindowTTL sets how long the shared window crawl stays cached
func WithWindowTTL(ttl time.Duration) Option {
	return func(a *Aggregator) { a.windowTTL = ttl }
}

// WithMetrics counts absorbed sub-query failures
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithSpacing replaces the limiter built for each configured delay
func WithSpacing(f func(time.Duration) *rate.Limiter) Option {
	return func(a *Aggregator) { a.spacing = f }
}

// New creates an aggregator. loader backs the window crawl shared by the
// activity sub-queries.
func New(source Source, commits CommitSource, loader *cache.Loader, cfg config.StatsConfig, logger logrus.FieldLogger, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:    source,
		commits:   commits,
		loader:    loader,
		cfg:       cfg,
		windowTTL: defaultWindowTTL,
		logger:    logging.Component(logger, "stats"),
		now:       time.Now,
		spacing: func(d time.Duration) *rate.Limiter {
			return rate.NewLimiter(rate.Every(d), 1)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// General runs every sub-query concurrently over the last days days and
// merges the results. A failed sub-query contributes its zero value; only
// authorization failures and cancellation fail the report.
func (a *Aggregator) General(ctx context.Context, org, project string, days int) (GeneralStats, error) {
	start := a.now()
	window := crawler.LastDays(start, days)
	log := a.logger.WithFields(logrus.Fields{
		"organization": org,
		"project":      project,
		"days":         days,
	})
	log.Info("gathering general statistics")

	var (
		builds     BuildStatistics
		prs        PullRequestStatistics
		workItems  WorkItemStatistics
		repos      RepositoryStatistics
		coverage   float64
		perDay     float64
		developers int
	)

	g, gctx := errgroup.WithContext(ctx)
	run(g, gctx, a, SubqueryBuilds, &builds, func(ctx context.Context) (BuildStatistics, error) {
		return a.buildStats(ctx, org, project, window)
	})
	run(g, gctx, a, SubqueryPullRequests, &prs, func(ctx context.Context) (PullRequestStatistics, error) {
		return a.pullRequestStats(ctx, org, project, window)
	})
	run(g, gctx, a, SubqueryWorkItems, &workItems, func(ctx context.Context) (WorkItemStatistics, error) {
		return a.workItemStats(ctx, org, project, window)
	})
	run(g, gctx, a, SubqueryRepositories, &repos, func(ctx context.Context) (RepositoryStatistics, error) {
		return a.repositoryStats(ctx, org, project, start)
	})
	run(g, gctx, a, SubqueryCoverage, &coverage, func(ctx context.Context) (float64, error) {
		return a.codeCoverage(ctx, org, project, window)
	})
	run(g, gctx, a, SubqueryCommitsPerDay, &perDay, func(ctx context.Context) (float64, error) {
		return a.commitsPerDay(ctx, org, project, window, days)
	})
	run(g, gctx, a, SubqueryDevelopers, &developers, func(ctx context.Context) (int, error) {
		return a.activeDevelopers(ctx, org, project, window)
	})

	if err := g.Wait(); err != nil {
		return GeneralStats{}, err
	}

	report := merge(builds, prs, workItems, repos, coverage, perDay, developers, days, start)
	log.WithField("duration", a.now().Sub(start).String()).Info("general statistics gathered")
	return report, nil
}

// run launches one isolated sub-query and stores its result in out
func run[T any](g *errgroup.Group, ctx context.Context, a *Aggregator, name string, out *T, fn func(context.Context) (T, error)) {
	g.Go(func() error {
		v, err := safely(ctx, a, name, fn)
		*out = v
		return err
	})
}

// safely absorbs a sub-query failure, including a panic, into the zero value.
// Authorization failures and cancellation are returned.
func safely[T any](ctx context.Context, a *Aggregator, name string, fn func(context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result, err = zero, errors.InternalErrorf("%s sub-query panicked: %v", name, r)
			a.absorb(name, err)
			err = nil
		}
	}()

	result, err = fn(ctx)
	if err == nil {
		return result, nil
	}

	var zero T
	if !isolatable(ctx, err) {
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	a.absorb(name, err)
	return zero, nil
}

func (a *Aggregator) absorb(name string, err error) {
	a.metrics.ObserveSubqueryFailure(name)
	a.logger.WithError(err).WithField("subquery", name).Warn("sub-query failed, using default")
}

// isolatable reports whether a failure may be replaced by a default
func isolatable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.IsAuthorization(err)
}

// scopedProjects runs fn for the requested project, or for each of the first
// limit projects of the organization. Organization-wide, a failing project
// is logged and skipped.
func (a *Aggregator) scopedProjects(ctx context.Context, org, project string, limit int, name string, fn func(ctx context.Context, project string) error) error {
	if project != "" {
		return fn(ctx, project)
	}

	projects, err := a.source.ListProjects(ctx, org)
	if err != nil {
		return err
	}
	if len(projects) > limit {
		projects = projects[:limit]
	}

	limiter := a.spacing(a.cfg.ProjectDelay)
	for i, p := range projects {
		if i > 0 {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := fn(ctx, p.Name); err != nil {
			if !isolatable(ctx, err) {
				return err
			}
			a.logger.WithError(err).WithFields(logrus.Fields{
				"subquery": name,
				"project":  p.Name,
			}).Warn("project failed, skipping")
		}
	}
	return nil
}

// windowCommits crawls the window once per scope; concurrent callers share
// the crawl through the loader
func (a *Aggregator) windowCommits(ctx context.Context, org, project string, window crawler.Window) ([]devops.CommitRef, error) {
	key := cache.Key(operationWindow, org, project, window.From, window.To, a.scope)
	return cache.Load(ctx, a.loader, operationWindow, key, a.windowTTL, func(ctx context.Context) ([]devops.CommitRef, error) {
		return a.commits.Crawl(ctx, crawler.Query{Organization: org, Project: project, Window: window})
	})
}
