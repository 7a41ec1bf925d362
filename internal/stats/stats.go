// Package stats gathers build, pull-request, work-item, repository, coverage
// and activity statistics concurrently and merges them into one report.
package stats

import (
	"fmt"
	"time"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/analysis"
)

// BuildStatistics summarizes pipeline runs
type BuildStatistics struct {
	TotalBuilds      int
	SuccessfulBuilds int
	AverageDuration  time.Duration
}

// PullRequestStatistics summarizes pull requests
type PullRequestStatistics struct {
	TotalPRs      int
	MergedPRs     int
	AveragePRTime time.Duration
}

// WorkItemStatistics summarizes work items created in the window
type WorkItemStatistics struct {
	TotalWorkItems     int
	CompletedWorkItems int
}

// RepositoryStatistics counts repositories and recently active ones
type RepositoryStatistics struct {
	TotalRepositories  int
	ActiveRepositories int
}

// GeneralStats is the composite report. Durations serialize as nanoseconds.
type GeneralStats struct {
	TotalBuilds          int           `json:"totalBuilds" yaml:"totalBuilds"`
	SuccessfulBuilds     int           `json:"successfulBuilds" yaml:"successfulBuilds"`
	BuildSuccessRate     float64       `json:"buildSuccessRate" yaml:"buildSuccessRate"`
	AverageBuildDuration time.Duration `json:"averageBuildDuration" yaml:"averageBuildDuration"`

	TotalPullRequests  int           `json:"totalPullRequests" yaml:"totalPullRequests"`
	MergedPullRequests int           `json:"mergedPullRequests" yaml:"mergedPullRequests"`
	AveragePRTime      time.Duration `json:"averagePRTime" yaml:"averagePRTime"`
	PRMergeRate        float64       `json:"prMergeRate" yaml:"prMergeRate"`

	TotalWorkItems         int     `json:"totalWorkItems" yaml:"totalWorkItems"`
	CompletedWorkItems     int     `json:"completedWorkItems" yaml:"completedWorkItems"`
	WorkItemCompletionRate float64 `json:"workItemCompletionRate" yaml:"workItemCompletionRate"`

	TotalRepositories  int `json:"totalRepositories" yaml:"totalRepositories"`
	ActiveRepositories int `json:"activeRepositories" yaml:"activeRepositories"`

	CodeCoverage float64 `json:"codeCoverage" yaml:"codeCoverage"`

	CommitsPerDay    float64 `json:"commitsPerDay" yaml:"commitsPerDay"`
	ActiveDevelopers int     `json:"activeDevelopers" yaml:"activeDevelopers"`

	DaysAnalyzed int       `json:"daysAnalyzed" yaml:"daysAnalyzed"`
	LastUpdated  time.Time `json:"lastUpdated" yaml:"lastUpdated"`
}

// Empty is the report returned when statistics could not be gathered
func Empty(days int, now time.Time) GeneralStats {
	return GeneralStats{DaysAnalyzed: days, LastUpdated: now.UTC()}
}

// Rate is part/total as a percentage rounded to two decimals, 0 when total is 0
func Rate(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return analysis.Round2(float64(part) / float64(total) * 100)
}

func merge(b BuildStatistics, pr PullRequestStatistics, wi WorkItemStatistics, repos RepositoryStatistics,
	coverage, commitsPerDay float64, developers, days int, now time.Time) GeneralStats {
	return GeneralStats{
		TotalBuilds:          b.TotalBuilds,
		SuccessfulBuilds:     b.SuccessfulBuilds,
		BuildSuccessRate:     Rate(b.SuccessfulBuilds, b.TotalBuilds),
		AverageBuildDuration: b.AverageDuration,

		TotalPullRequests:  pr.TotalPRs,
		MergedPullRequests: pr.MergedPRs,
		AveragePRTime:      pr.AveragePRTime,
		PRMergeRate:        Rate(pr.MergedPRs, pr.TotalPRs),

		TotalWorkItems:         wi.TotalWorkItems,
		CompletedWorkItems:     wi.CompletedWorkItems,
		WorkItemCompletionRate: Rate(wi.CompletedWorkItems, wi.TotalWorkItems),

		TotalRepositories:  repos.TotalRepositories,
		ActiveRepositories: repos.ActiveRepositories,

		CodeCoverage:     coverage,
		CommitsPerDay:    commitsPerDay,
		ActiveDevelopers: developers,

		DaysAnalyzed: days,
		LastUpdated:  now.UTC(),
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// BuildSuccessRateText renders the build success rate, e.g. "87.5%"
func (s GeneralStats) BuildSuccessRateText() string { return percent(s.BuildSuccessRate) }

// PRMergeRateText renders the pull-request merge rate
func (s GeneralStats) PRMergeRateText() string { return percent(s.PRMergeRate) }

// WorkItemCompletionRateText renders the work-item completion rate
func (s GeneralStats) WorkItemCompletionRateText() string { return percent(s.WorkItemCompletionRate) }

// CodeCoverageText renders the coverage percentage
func (s GeneralStats) CodeCoverageText() string { return percent(s.CodeCoverage) }

// AverageBuildDurationText renders minutes, or hours past one hour
func (s GeneralStats) AverageBuildDurationText() string {
	d := s.AverageBuildDuration
	if d.Minutes() > 60 {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	return fmt.Sprintf("%.0fmin", d.Minutes())
}

// AveragePRTimeText renders hours, or days from one day on
func (s GeneralStats) AveragePRTimeText() string {
	d := s.AveragePRTime
	if d >= 24*time.Hour {
		return fmt.Sprintf("%.1f days", d.Hours()/24)
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
