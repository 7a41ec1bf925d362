// Package crawler walks organization → projects → repositories → commit
// pages and returns a flat, annotated commit list.
package crawler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/logging"
)

// Source is the subset of the API the crawler reads
type Source interface {
	ListProjects(ctx context.Context, org string) ([]devops.Project, error)
	ListRepositories(ctx context.Context, org, project string) ([]devops.Repository, error)
	ListCommits(ctx context.Context, org, project, repoID string, q devops.CommitQuery) ([]devops.CommitRef, error)
}

// Query selects the commits to crawl
type Query struct {
	Organization string
	Project      string // empty walks the first MaxProjects projects
	Window       Window
	Author       string
}

// Crawler fetches commits across repositories with bounded sampling
type Crawler struct {
	source         Source
	cfg            config.CrawlConfig
	pageLimiter    *rate.Limiter
	projectLimiter *rate.Limiter
	logger         logrus.FieldLogger
}

// Option customizes a Crawler
type Option func(*Crawler)

// WithLimiters replaces the page and project spacing limiters
func WithLimiters(page, project *rate.Limiter) Option {
	return func(c *Crawler) {
		c.pageLimiter = page
		c.projectLimiter = project
	}
}

// New creates a crawler
func New(source Source, cfg config.CrawlConfig, logger logrus.FieldLogger, opts ...Option) *Crawler {
	c := &Crawler{
		source:         source,
		cfg:            cfg,
		pageLimiter:    spacing(cfg.PageDelay),
		projectLimiter: spacing(cfg.ProjectDelay),
		logger:         logging.Component(logger, "crawler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// spacing allows one event per delay
func spacing(delay time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Crawl returns every commit matching q. A failing repository, or project
// during an organization-wide crawl, is logged and skipped; authorization
// failures and failures to enumerate the requested scope abort the crawl.
func (c *Crawler) Crawl(ctx context.Context, q Query) ([]devops.CommitRef, error) {
	start := time.Now()
	log := c.logger.WithFields(logrus.Fields{
		"organization": q.Organization,
		"project":      q.Project,
		"from":         q.Window.From.Format(time.DateOnly),
		"to":           q.Window.To.Format(time.DateOnly),
	})
	log.Info("starting commit crawl")

	var (
		commits []devops.CommitRef
		err     error
	)
	if q.Project != "" {
		commits, err = c.crawlProject(ctx, q, q.Project)
	} else {
		commits, err = c.crawlOrganization(ctx, q, log)
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"commits":  len(commits),
		"duration": time.Since(start).String(),
	}).Info("commit crawl completed")
	return commits, nil
}

func (c *Crawler) crawlOrganization(ctx context.Context, q Query, log logrus.FieldLogger) ([]devops.CommitRef, error) {
	projects, err := c.source.ListProjects(ctx, q.Organization)
	if err != nil {
		return nil, err
	}
	if len(projects) > c.cfg.MaxProjects {
		log.WithFields(logrus.Fields{
			"projects": len(projects),
			"sampled":  c.cfg.MaxProjects,
		}).Info("sampling projects")
		projects = projects[:c.cfg.MaxProjects]
	}

	var all []devops.CommitRef
	for i, p := range projects {
		if i > 0 {
			if err := c.projectLimiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		commits, err := c.crawlProject(ctx, q, p.Name)
		if err != nil {
			if !skippable(ctx, err) {
				return nil, err
			}
			log.WithError(err).WithField("skipped_project", p.Name).Warn("project crawl failed, skipping")
		}
		all = append(all, commits...)
	}
	return all, nil
}

func (c *Crawler) crawlProject(ctx context.Context, q Query, project string) ([]devops.CommitRef, error) {
	repos, err := c.source.ListRepositories(ctx, q.Organization, project)
	if err != nil {
		return nil, err
	}

	var all []devops.CommitRef
	for i, repo := range repos {
		if i > 0 {
			if err := c.pageLimiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		commits, err := c.crawlRepository(ctx, q, project, repo)
		if err != nil {
			if !skippable(ctx, err) {
				return nil, err
			}
			c.logger.WithError(err).WithFields(logrus.Fields{
				"project":    project,
				"repository": repo.Name,
				"kept":       len(commits),
			}).Warn("repository crawl failed, skipping remaining pages")
		}
		all = append(all, commits...)
	}
	return all, nil
}

func (c *Crawler) crawlRepository(ctx context.Context, q Query, project string, repo devops.Repository) ([]devops.CommitRef, error) {
	projectName := project
	if repo.Project != nil && repo.Project.Name != "" {
		projectName = repo.Project.Name
	}

	commits, err := devops.Paginate(ctx, c.cfg.PageSize, c.pageLimiter, func(ctx context.Context, skip, top int) ([]devops.CommitRef, error) {
		return c.source.ListCommits(ctx, q.Organization, project, repo.ID, devops.CommitQuery{
			From:   q.Window.From,
			To:     q.Window.To,
			Author: q.Author,
			Top:    top,
			Skip:   skip,
		})
	})

	for i := range commits {
		commits[i].ProjectName = projectName
		commits[i].RepositoryName = repo.Name
		commits[i].RepositoryID = repo.ID
	}
	return commits, err
}

// skippable reports whether a sub-crawl failure may be isolated
func skippable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.IsAuthorization(err)
}
