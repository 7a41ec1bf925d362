package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/analysis"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/crawler"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
)

const (
	buildPageSize   = 100
	resultSucceeded = "succeeded"
	statusAll       = "all"
	stateField      = "System.State"
)

// Work-item states counted as completed, compared case-insensitively
var completedStates = map[string]bool{
	"done":      true,
	"closed":    true,
	"resolved":  true,
	"completed": true,
}

func (a *Aggregator) buildStats(ctx context.Context, org, project string, window crawler.Window) (BuildStatistics, error) {
	var builds []devops.Build
	err := a.scopedProjects(ctx, org, project, a.cfg.MaxProjects, SubqueryBuilds, func(ctx context.Context, project string) error {
		page, err := devops.Paginate(ctx, buildPageSize, a.spacing(a.cfg.RepoDelay), func(ctx context.Context, skip, top int) ([]devops.Build, error) {
			return a.source.ListBuilds(ctx, org, project, devops.BuildQuery{
				MinTime: window.From,
				MaxTime: window.To,
				Top:     top,
				Skip:    skip,
			})
		})
		builds = append(builds, page...)
		return err
	})
	if err != nil {
		return BuildStatistics{}, err
	}
	return summarizeBuilds(builds), nil
}

func summarizeBuilds(builds []devops.Build) BuildStatistics {
	s := BuildStatistics{TotalBuilds: len(builds)}

	var total time.Duration
	var timed int
	for _, b := range builds {
		if b.Result == resultSucceeded {
			s.SuccessfulBuilds++
		}
		if d, ok := b.Duration(); ok && d > 0 {
			total += d
			timed++
		}
	}
	if timed > 0 {
		s.AverageDuration = total / time.Duration(timed)
	}
	return s
}

func (a *Aggregator) pullRequestStats(ctx context.Context, org, project string, window crawler.Window) (PullRequestStatistics, error) {
	var prs []devops.PullRequest
	err := a.scopedProjects(ctx, org, project, a.cfg.MaxProjects, SubqueryPullRequests, func(ctx context.Context, project string) error {
		repos, err := a.source.ListRepositories(ctx, org, project)
		if err != nil {
			return err
		}
		if len(repos) > a.cfg.PRReposPerProject {
			repos = repos[:a.cfg.PRReposPerProject]
		}

		limiter := a.spacing(a.cfg.RepoDelay)
		for i, repo := range repos {
			if i > 0 {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}

			found, err := a.source.ListPullRequests(ctx, org, repoProject(repo, project), repo.ID, devops.PullRequestQuery{
				Status:  statusAll,
				MinTime: window.From,
				MaxTime: window.To,
			})
			if err != nil {
				if !isolatable(ctx, err) {
					return err
				}
				a.logger.WithError(err).WithField("repository", repo.Name).Warn("pull request listing failed, skipping repository")
				continue
			}
			prs = append(prs, found...)
		}
		return nil
	})
	if err != nil {
		return PullRequestStatistics{}, err
	}
	return summarizePullRequests(prs), nil
}

func summarizePullRequests(prs []devops.PullRequest) PullRequestStatistics {
	s := PullRequestStatistics{TotalPRs: len(prs)}

	var total time.Duration
	var timed int
	for _, pr := range prs {
		if pr.Status == "completed" && pr.MergeStatus == "succeeded" {
			s.MergedPRs++
		}
		if d, ok := pr.OpenDuration(); ok && d > 0 {
			total += d
			timed++
		}
	}
	if timed > 0 {
		s.AveragePRTime = total / time.Duration(timed)
	}
	return s
}

func (a *Aggregator) workItemStats(ctx context.Context, org, project string, window crawler.Window) (WorkItemStatistics, error) {
	var s WorkItemStatistics
	err := a.scopedProjects(ctx, org, project, a.cfg.MaxProjects, SubqueryWorkItems, func(ctx context.Context, project string) error {
		total, completed, err := a.projectWorkItems(ctx, org, project, window)
		if err != nil {
			return err
		}
		s.TotalWorkItems += total
		s.CompletedWorkItems += completed
		return nil
	})
	if err != nil {
		return WorkItemStatistics{}, err
	}
	return s, nil
}

func (a *Aggregator) projectWorkItems(ctx context.Context, org, project string, window crawler.Window) (int, int, error) {
	refs, err := a.source.QueryWorkItems(ctx, org, project, workItemQuery(project, window))
	if err != nil {
		return 0, 0, err
	}
	if len(refs) == 0 {
		return 0, 0, nil
	}

	batchSize := max(a.cfg.WorkItemBatchSize, 1)
	limiter := a.spacing(a.cfg.RepoDelay)
	completed := 0

	for start := 0; start < len(refs); start += batchSize {
		if start > 0 {
			if err := limiter.Wait(ctx); err != nil {
				return 0, 0, err
			}
		}

		end := min(start+batchSize, len(refs))
		ids := make([]int, 0, end-start)
		for _, r := range refs[start:end] {
			ids = append(ids, r.ID)
		}

		items, err := a.source.GetWorkItems(ctx, org, project, ids, []string{stateField})
		if err != nil {
			if !isolatable(ctx, err) {
				return 0, 0, err
			}
			a.logger.WithError(err).WithFields(logrus.Fields{
				"project": project,
				"batch":   len(ids),
			}).Warn("work item batch failed, skipping")
			continue
		}
		for _, wi := range items {
			if completedStates[strings.ToLower(wi.Field(stateField))] {
				completed++
			}
		}
	}
	return len(refs), completed, nil
}

// workItemQuery selects the ids of work items created in the window
func workItemQuery(project string, window crawler.Window) string {
	return fmt.Sprintf(
		"SELECT [System.Id], [System.State] FROM WorkItems "+
			"WHERE [System.TeamProject] = '%s' "+
			"AND [System.CreatedDate] >= '%s' "+
			"AND [System.CreatedDate] <= '%s' "+
			"ORDER BY [System.ChangedDate] DESC",
		strings.ReplaceAll(project, "'", "''"),
		window.From.UTC().Format(time.DateOnly),
		window.To.UTC().Format(time.DateOnly),
	)
}

func (a *Aggregator) repositoryStats(ctx context.Context, org, project string, now time.Time) (RepositoryStatistics, error) {
	repos, err := a.source.ListRepositories(ctx, org, project)
	if err != nil {
		return RepositoryStatistics{}, err
	}

	s := RepositoryStatistics{TotalRepositories: len(repos)}
	probed := repos
	if len(probed) > a.cfg.MaxActivityRepos {
		probed = probed[:a.cfg.MaxActivityRepos]
	}

	since := now.AddDate(0, 0, -a.cfg.ActivityWindowDays)
	limiter := a.spacing(a.cfg.ProbeDelay)
	for i, repo := range probed {
		if i > 0 {
			if err := limiter.Wait(ctx); err != nil {
				return RepositoryStatistics{}, err
			}
		}

		p := repoProject(repo, project)
		if p == "" {
			a.logger.WithField("repository", repo.Name).Debug("repository has no project, not probing activity")
			continue
		}

		latest, err := a.source.ListCommits(ctx, org, p, repo.ID, devops.CommitQuery{From: since, Top: 1})
		if err != nil {
			if !isolatable(ctx, err) {
				return RepositoryStatistics{}, err
			}
			a.logger.WithError(err).WithField("repository", repo.Name).Warn("activity probe failed, skipping repository")
			continue
		}
		if len(latest) > 0 {
			s.ActiveRepositories++
		}
	}
	return s, nil
}

// codeCoverage averages the positive per-project values. A project's value
// is the mean over its latest succeeded builds that report coverage.
func (a *Aggregator) codeCoverage(ctx context.Context, org, project string, window crawler.Window) (float64, error) {
	var values []float64
	err := a.scopedProjects(ctx, org, project, a.cfg.MaxCoverageProjects, SubqueryCoverage, func(ctx context.Context, project string) error {
		v, err := a.projectCoverage(ctx, org, project, window)
		if err != nil {
			return err
		}
		if v > 0 {
			values = append(values, v)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return analysis.Round2(mean(values)), nil
}

func (a *Aggregator) projectCoverage(ctx context.Context, org, project string, window crawler.Window) (float64, error) {
	builds, err := a.source.ListBuilds(ctx, org, project, devops.BuildQuery{
		MinTime:      window.From,
		MaxTime:      window.To,
		ResultFilter: resultSucceeded,
		Top:          a.cfg.CoverageBuilds,
	})
	if err != nil {
		return 0, err
	}
	if len(builds) > a.cfg.CoverageBuildsProbed {
		builds = builds[:a.cfg.CoverageBuildsProbed]
	}

	var values []float64
	for _, b := range builds {
		data, err := a.source.GetCodeCoverage(ctx, org, project, b.ID)
		if err != nil {
			if !isolatable(ctx, err) {
				return 0, err
			}
			a.logger.WithError(err).WithField("build", b.ID).Warn("coverage lookup failed, skipping build")
			continue
		}

		var total, covered int
		for _, d := range data {
			for _, stat := range d.CoverageStats {
				total += stat.Total
				covered += stat.Covered
			}
		}
		if total > 0 {
			values = append(values, float64(covered)/float64(total)*100)
		}
	}
	return mean(values), nil
}

func (a *Aggregator) commitsPerDay(ctx context.Context, org, project string, window crawler.Window, days int) (float64, error) {
	if days <= 0 {
		return 0, nil
	}
	commits, err := a.windowCommits(ctx, org, project, window)
	if err != nil {
		return 0, err
	}
	return analysis.Round2(float64(len(commits)) / float64(days)), nil
}

func (a *Aggregator) activeDevelopers(ctx context.Context, org, project string, window crawler.Window) (int, error) {
	commits, err := a.windowCommits(ctx, org, project, window)
	if err != nil {
		return 0, err
	}

	emails := make(map[string]struct{})
	for _, c := range commits {
		if email := strings.ToLower(strings.TrimSpace(c.Author.Email)); email != "" {
			emails[email] = struct{}{}
		}
	}
	return len(emails), nil
}

// repoProject prefers the project recorded on the repository
func repoProject(repo devops.Repository, fallback string) string {
	if repo.Project != nil && repo.Project.Name != "" {
		return repo.Project.Name
	}
	return fallback
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
