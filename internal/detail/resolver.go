// Package detail reconstructs per-commit line statistics, file types,
// category and size from change lists and file diffs.
package detail

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

// Fallback estimate for an edited file whose diff is unavailable
const (
	editEstimateAdded   = 5
	editEstimateDeleted = 3
)

// Source is the subset of the API the resolver reads
type Source interface {
	GetCommitChanges(ctx context.Context, org, project, repoID, commitID string) ([]devops.Change, error)
	GetFileDiff(ctx context.Context, org, project, repoID, commitID, path string) ([]devops.DiffChange, error)
}

// DetailedCommit is a raw commit enriched with line statistics
type DetailedCommit struct {
	CommitID       string     `json:"commitId" yaml:"commitId"`
	Author         string     `json:"author" yaml:"author"`
	AuthorEmail    string     `json:"authorEmail" yaml:"authorEmail"`
	Message        string     `json:"message" yaml:"message"`
	Date           time.Time  `json:"date" yaml:"date"`
	LinesAdded     int        `json:"linesAdded" yaml:"linesAdded"`
	LinesDeleted   int        `json:"linesDeleted" yaml:"linesDeleted"`
	TotalChanges   int        `json:"totalChanges" yaml:"totalChanges"`
	FilesChanged   int        `json:"filesChanged" yaml:"filesChanged"`
	FileTypes      []string   `json:"fileTypes" yaml:"fileTypes"`
	ProjectName    string     `json:"projectName" yaml:"projectName"`
	RepositoryName string     `json:"repositoryName" yaml:"repositoryName"`
	RepositoryID   string     `json:"repositoryId" yaml:"repositoryId"`
	Category       Category   `json:"category" yaml:"category"`
	Size           SizeBucket `json:"size" yaml:"size"`
}

// Resolver fetches commit details one commit at a time
type Resolver struct {
	source  Source
	cfg     config.CrawlConfig
	limiter *rate.Limiter
	logger  logrus.FieldLogger
}

// Option customizes a Resolver
type Option func(*Resolver)

// WithLimiter replaces the per-commit spacing limiter
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Resolver) { r.limiter = l }
}

// NewResolver creates a resolver bounded by cfg.MaxDetailCommits
func NewResolver(source Source, cfg config.CrawlConfig, logger logrus.FieldLogger, opts ...Option) *Resolver {
	r := &Resolver{
		source:  source,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.DetailDelay), 1),
		logger:  logging.Component(logger, "detail"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve details up to MaxDetailCommits commits, restricted to repositoryID
// when it is set. Commits that cannot be resolved are dropped with a
// warning; authorization failures abort.
func (r *Resolver) Resolve(ctx context.Context, org string, commits []devops.CommitRef, repositoryID string) ([]DetailedCommit, error) {
	selected := r.selectCommits(commits, repositoryID)

	detailed := make([]DetailedCommit, 0, len(selected))
	for i, c := range selected {
		if i > 0 {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		d, err := r.resolveCommit(ctx, org, c)
		switch {
		case err == nil:
			detailed = append(detailed, d)
		case ctx.Err() != nil || errors.IsAuthorization(err):
			return nil, err
		case errors.IsNotFound(err):
			r.logger.WithField("commit", c.CommitID).Warn("commit not found or not accessible, dropping")
		default:
			r.logger.WithError(err).WithField("commit", c.CommitID).Warn("failed to resolve commit details, dropping")
		}

		r.progress(i+1, len(selected))
	}
	return detailed, nil
}

// selectCommits takes the first MaxDetailCommits commits, then keeps those
// of repositoryID when set
func (r *Resolver) selectCommits(commits []devops.CommitRef, repositoryID string) []devops.CommitRef {
	limit := min(len(commits), max(r.cfg.MaxDetailCommits, 0))
	selected := make([]devops.CommitRef, 0, limit)
	for _, c := range commits[:limit] {
		if repositoryID != "" && c.RepositoryID != repositoryID {
			continue
		}
		selected = append(selected, c)
	}
	return selected
}

func (r *Resolver) progress(processed, total int) {
	if r.cfg.ProgressEvery > 0 && processed%r.cfg.ProgressEvery == 0 {
		r.logger.WithFields(logrus.Fields{
			"processed": processed,
			"total":     total,
		}).Info("resolving commit details")
	}
}

func (r *Resolver) resolveCommit(ctx context.Context, org string, c devops.CommitRef) (DetailedCommit, error) {
	changes, err := r.source.GetCommitChanges(ctx, org, c.ProjectName, c.RepositoryID, c.CommitID)
	if err != nil {
		return DetailedCommit{}, err
	}

	var added, deleted int
	fileTypes := []string{}
	seen := map[string]bool{}

	for _, change := range changes {
		p := change.Path()
		if ext := Extension(p); ext != "" && !seen[ext] {
			seen[ext] = true
			fileTypes = append(fileTypes, ext)
		}

		switch change.ChangeType {
		case "add", "edit":
			a, d, err := r.lineCounts(ctx, org, c, change)
			if err != nil {
				return DetailedCommit{}, err
			}
			added += a
			deleted += d
		case "delete":
			deleted += EstimateFileSize(p)
		}
	}

	total := added + deleted
	return DetailedCommit{
		CommitID:       c.CommitID,
		Author:         c.Author.Name,
		AuthorEmail:    c.Author.Email,
		Message:        c.Comment,
		Date:           c.Author.Date,
		LinesAdded:     added,
		LinesDeleted:   deleted,
		TotalChanges:   total,
		FilesChanged:   len(changes),
		FileTypes:      fileTypes,
		ProjectName:    orUnknown(c.ProjectName),
		RepositoryName: orUnknown(c.RepositoryName),
		RepositoryID:   c.RepositoryID,
		Category:       CategorizeCommit(c.Comment),
		Size:           CategorizeSize(total),
	}, nil
}

// lineCounts reads exact counts from the diff endpoint, falling back to
// estimates when it fails. Only authorization and cancellation surface.
func (r *Resolver) lineCounts(ctx context.Context, org string, c devops.CommitRef, change devops.Change) (int, int, error) {
	p := change.Path()
	if p == "" {
		return 0, 0, nil
	}

	diff, err := r.source.GetFileDiff(ctx, org, c.ProjectName, c.RepositoryID, c.CommitID, p)
	if err != nil {
		if ctx.Err() != nil || errors.IsAuthorization(err) {
			return 0, 0, err
		}
		r.logger.WithError(err).WithFields(logrus.Fields{
			"commit": c.CommitID,
			"path":   p,
		}).Debug("diff unavailable, estimating")

		if change.ChangeType == "add" {
			return EstimateFileSize(p), 0, nil
		}
		return editEstimateAdded, editEstimateDeleted, nil
	}

	var added, deleted int
	for _, line := range diff {
		switch line.ChangeType {
		case "add":
			added++
		case "delete":
			deleted++
		}
	}
	return added, deleted, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
