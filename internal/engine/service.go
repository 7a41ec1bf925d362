// Package engine exposes the public metrics operations. Each call binds the
// caller's token to a fresh crawler, resolver and aggregator, and memoizes
// its result in the shared cache.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/analysis"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/cache"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/crawler"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/detail"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/graph"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/logging"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/ranking"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/stats"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/telemetry"
)

// Operation names, used as cache key prefixes and log fields
const (
	OpCommitMetrics  = "commit_metrics"
	OpRanking        = "developer_ranking"
	OpCodeGraph      = "code_graph"
	OpGeneralStats   = "general_stats"
	OpCommitAnalysis = "commit_analysis"
)

// Source is everything the engine reads from the API
type Source interface {
	crawler.Source
	detail.Source
	stats.Source
}

// Binder returns a Source authenticated with one caller's token
type Binder func(token string) Source

// Service runs the public operations
type Service struct {
	bind     Binder
	loader   *cache.Loader
	cfg      *config.Config
	identity analysis.Identity
	metrics  *telemetry.Metrics
	logger   logrus.FieldLogger
	now      func() time.Time
	spacing  func(time.Duration) *rate.Limiter
}

// Option customizes a Service
type Option func(*Service)

// WithMetrics records cache and sub-query outcomes
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSpacing replaces the limiter built for every configured delay
func WithSpacing(f func(time.Duration) *rate.Limiter) Option {
	return func(s *Service) { s.spacing = f }
}

// WithBinder replaces how a token is bound to an API source
func WithBinder(b Binder) Option {
	return func(s *Service) { s.bind = b }
}

// New creates a service. client carries no token; every operation binds the
// request's own.
func New(client *devops.Client, loader *cache.Loader, cfg *config.Config, logger logrus.FieldLogger, opts ...Option) (*Service, error) {
	identity, err := analysis.ParseIdentity(cfg.Analysis.AuthorIdentity)
	if err != nil {
		return nil, err
	}

	s := &Service{
		bind:     func(token string) Source { return client.WithToken(token) },
		loader:   loader,
		cfg:      cfg,
		identity: identity,
		logger:   logging.Component(logger, "engine"),
		now:      time.Now,
		spacing: func(d time.Duration) *rate.Limiter {
			return rate.NewLimiter(rate.Every(d), 1)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// begin tags the log lines of one call with a request id
func (s *Service) begin(operation, organization, project string) logrus.FieldLogger {
	return s.logger.WithFields(logrus.Fields{
		"request_id":   uuid.NewString(),
		"operation":    operation,
		"organization": organization,
		"project":      project,
	})
}

func (s *Service) newCrawler(src Source) *crawler.Crawler {
	return crawler.New(src, s.cfg.Crawl, s.logger,
		crawler.WithLimiters(s.spacing(s.cfg.Crawl.PageDelay), s.spacing(s.cfg.Crawl.ProjectDelay)))
}

func (s *Service) newResolver(src Source) *detail.Resolver {
	return detail.NewResolver(src, s.cfg.Crawl, s.logger, detail.WithLimiter(s.spacing(s.cfg.Crawl.DetailDelay)))
}

func (s *Service) newAggregator(src Source, scope string) *stats.Aggregator {
	return stats.New(src, s.newCrawler(src), s.loader, s.cfg.Stats, s.logger,
		stats.WithScope(scope),
		stats.WithWindowTTL(s.cfg.Cache.WindowTTL),
		stats.WithMetrics(s.metrics),
		stats.WithClock(s.now),
		stats.WithSpacing(s.spacing),
	)
}

// CommitMetrics counts the commits of the window by author, day, project
// and repository
func (s *Service) CommitMetrics(ctx context.Context, req MetricsRequest) (analysis.CommitMetrics, error) {
	if err := validateScope(req.Organization, req.Token); err != nil {
		return analysis.CommitMetrics{}, err
	}
	window, err := crawler.ResolveWindow(req.Year, req.Month, s.now(), s.cfg.Crawl.DefaultWindowMonths)
	if err != nil {
		return analysis.CommitMetrics{}, err
	}

	log := s.begin(OpCommitMetrics, req.Organization, req.Project)
	key := cache.Key(OpCommitMetrics, req.Organization, req.Project,
		req.Year, req.Month, req.Author, string(s.identity), cache.Fingerprint(req.Token))

	metrics, err := cache.Load(ctx, s.loader, OpCommitMetrics, key, s.cfg.Cache.CommitMetricsTTL,
		func(ctx context.Context) (analysis.CommitMetrics, error) {
			commits, err := s.newCrawler(s.bind(req.Token)).Crawl(ctx, crawler.Query{
				Organization: req.Organization,
				Project:      req.Project,
				Window:       window,
				Author:       req.Author,
			})
			if err != nil {
				return analysis.CommitMetrics{}, err
			}
			return analysis.Summarize(commits, s.identity), nil
		})
	if err != nil {
		log.WithError(err).Error("commit metrics failed")
		return analysis.CommitMetrics{}, err
	}

	log.WithField("total_commits", metrics.TotalCommits).Info("commit metrics ready")
	return metrics, nil
}

// DeveloperRanking scores the developers of the window and returns the top
// ranking.DefaultTop
func (s *Service) DeveloperRanking(ctx context.Context, req RankingRequest) ([]ranking.DeveloperRanking, error) {
	if err := validateScope(req.Organization, req.Token); err != nil {
		return nil, err
	}
	now := s.now()
	window, err := crawler.ResolveWindow(req.Year, req.Month, now, s.cfg.Crawl.DefaultWindowMonths)
	if err != nil {
		return nil, err
	}

	log := s.begin(OpRanking, req.Organization, req.Project)
	key := cache.Key(OpRanking, req.Organization, req.Project,
		req.Year, req.Month, string(s.identity), cache.Fingerprint(req.Token))

	top, err := cache.Load(ctx, s.loader, OpRanking, key, s.cfg.Cache.RankingTTL,
		func(ctx context.Context) ([]ranking.DeveloperRanking, error) {
			commits, err := s.newCrawler(s.bind(req.Token)).Crawl(ctx, crawler.Query{
				Organization: req.Organization,
				Project:      req.Project,
				Window:       window,
			})
			if err != nil {
				return nil, err
			}
			return ranking.Top(ranking.Rank(commits, now, s.identity), ranking.DefaultTop), nil
		})
	if err != nil {
		log.WithError(err).Error("developer ranking failed")
		return nil, err
	}

	log.WithField("developers", len(top)).Info("developer ranking ready")
	return top, nil
}

// CodeGraph links authors to the files they touched this month in the target
// repository. Without repositories the graph is empty.
func (s *Service) CodeGraph(ctx context.Context, req GraphRequest) (graph.CodeGraphData, error) {
	if err := validateScope(req.Organization, req.Token); err != nil {
		return graph.CodeGraphData{}, err
	}
	window := crawler.CurrentMonth(s.now())

	log := s.begin(OpCodeGraph, req.Organization, req.Project)
	key := cache.Key(OpCodeGraph, req.Organization, req.Project,
		req.RepositoryID, window.From, string(s.identity), cache.Fingerprint(req.Token))

	data, err := cache.Load(ctx, s.loader, OpCodeGraph, key, s.cfg.Cache.GraphTTL,
		func(ctx context.Context) (graph.CodeGraphData, error) {
			src := s.bind(req.Token)

			repos, err := src.ListRepositories(ctx, req.Organization, req.Project)
			if err != nil {
				return graph.CodeGraphData{}, err
			}
			target, ok := graph.SelectRepository(repos, req.RepositoryID)
			if !ok {
				log.Info("no repositories in scope, graph is empty")
				return graph.Empty(), nil
			}

			commits, err := s.newCrawler(src).Crawl(ctx, crawler.Query{
				Organization: req.Organization,
				Project:      req.Project,
				Window:       window,
			})
			if err != nil {
				return graph.CodeGraphData{}, err
			}

			// An explicit id narrows the graph to the selected repository
			scope := ""
			if req.RepositoryID != "" {
				scope = target.ID
			}
			commits, err = s.newResolver(src).AttachChanges(ctx, req.Organization, commits, scope)
			if err != nil {
				return graph.CodeGraphData{}, err
			}
			return graph.Build(commits, s.identity), nil
		})
	if err != nil {
		log.WithError(err).Error("code graph failed")
		return graph.CodeGraphData{}, err
	}

	log.WithFields(logrus.Fields{
		"nodes": len(data.Nodes),
		"links": len(data.Links),
	}).Info("code graph ready")
	return data, nil
}

// GeneralStats gathers the composite statistics of the last Days days.
// Failures other than authorization and cancellation yield an empty report,
// which is not cached.
func (s *Service) GeneralStats(ctx context.Context, req StatsRequest) (stats.GeneralStats, error) {
	if err := validateScope(req.Organization, req.Token); err != nil {
		return stats.GeneralStats{}, err
	}
	days := req.Days
	if days == 0 {
		days = s.cfg.Stats.DefaultDays
	}
	if days < 0 {
		return stats.GeneralStats{}, errors.ValidationErrorf("days must not be negative, got %d", req.Days)
	}

	log := s.begin(OpGeneralStats, req.Organization, req.Project)
	scope := cache.Fingerprint(req.Token)
	key := cache.Key(OpGeneralStats, req.Organization, req.Project, days, scope)

	report, err := cache.Load(ctx, s.loader, OpGeneralStats, key, s.cfg.Cache.StatsTTL,
		func(ctx context.Context) (stats.GeneralStats, error) {
			return s.newAggregator(s.bind(req.Token), scope).General(ctx, req.Organization, req.Project, days)
		})
	if err != nil {
		if !recoverable(ctx, err) {
			log.WithError(err).Error("general statistics failed")
			return stats.GeneralStats{}, err
		}
		log.WithError(err).Warn("general statistics failed, returning empty report")
		return stats.Empty(days, s.now()), nil
	}
	return report, nil
}

// CommitAnalysis details up to MaxDetailCommits commits of the window.
// Failures other than authorization, validation and cancellation yield an
// empty analysis, which is not cached.
func (s *Service) CommitAnalysis(ctx context.Context, req AnalysisRequest) (analysis.CommitAnalysis, error) {
	if err := validateScope(req.Organization, req.Token); err != nil {
		return analysis.CommitAnalysis{}, err
	}
	now := s.now()
	window, err := crawler.ResolveWindow(req.Year, req.Month, now, s.cfg.Crawl.DefaultWindowMonths)
	if err != nil {
		return analysis.CommitAnalysis{}, err
	}

	log := s.begin(OpCommitAnalysis, req.Organization, req.Project)
	key := cache.Key(OpCommitAnalysis, req.Organization, req.Project,
		req.Year, req.Month, req.Author, req.RepositoryID, string(s.identity), cache.Fingerprint(req.Token))

	result, err := cache.Load(ctx, s.loader, OpCommitAnalysis, key, s.cfg.Cache.AnalysisTTL,
		func(ctx context.Context) (analysis.CommitAnalysis, error) {
			src := s.bind(req.Token)
			commits, err := s.newCrawler(src).Crawl(ctx, crawler.Query{
				Organization: req.Organization,
				Project:      req.Project,
				Window:       window,
				Author:       req.Author,
			})
			if err != nil {
				return analysis.CommitAnalysis{}, err
			}

			detailed, err := s.newResolver(src).Resolve(ctx, req.Organization, commits, req.RepositoryID)
			if err != nil {
				return analysis.CommitAnalysis{}, err
			}
			log.WithFields(logrus.Fields{
				"crawled":  len(commits),
				"detailed": len(detailed),
			}).Debug("commits detailed")
			return analysis.Analyze(detailed, s.identity, now), nil
		})
	if err != nil {
		if !recoverable(ctx, err) {
			log.WithError(err).Error("commit analysis failed")
			return analysis.CommitAnalysis{}, err
		}
		log.WithError(err).Warn("commit analysis failed, returning empty analysis")
		return analysis.EmptyAnalysis(now), nil
	}

	log.WithField("total_commits", result.TotalCommits).Info("commit analysis ready")
	return result, nil
}

// recoverable reports whether a failure may be answered with a default
func recoverable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.IsAuthorization(err) && !errors.IsValidation(err)
}
