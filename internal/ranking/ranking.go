// Package ranking scores developers by commit volume and recency.
package ranking

import (
	"sort"
	"time"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/analysis"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
)

// Commits older than this many days earn no recency bonus
const recencyDays = 30

// DefaultTop is how many developers the public ranking returns
const DefaultTop = 10

// DeveloperRanking is one developer's position in the ranking
type DeveloperRanking struct {
	DeveloperName           string    `json:"developerName" yaml:"developerName"`
	DeveloperEmail          string    `json:"developerEmail" yaml:"developerEmail"`
	CommitCount             int       `json:"commitCount" yaml:"commitCount"`
	Score                   float64   `json:"score" yaml:"score"`
	LastCommitDate          time.Time `json:"lastCommitDate" yaml:"lastCommitDate"`
	ProjectsContributed     int       `json:"projectsContributed" yaml:"projectsContributed"`
	RepositoriesContributed int       `json:"repositoriesContributed" yaml:"repositoriesContributed"`
}

// CommitScore is 1 plus a bonus that decays linearly from 1 today to 0 at
// 30 days. Elapsed days are truncated; future commits count as today.
func CommitScore(commitDate, now time.Time) float64 {
	days := int(now.Sub(commitDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return 1.0 + float64(max(0, recencyDays-days))/recencyDays
}

type developer struct {
	ranking      DeveloperRanking
	projects     map[string]struct{}
	repositories map[string]struct{}
}

// Rank scores every author in commits. The order is score descending, then
// commit count descending, then name ascending, so equal inputs always rank
// identically.
func Rank(commits []devops.CommitRef, now time.Time, identity analysis.Identity) []DeveloperRanking {
	devs := make(map[string]*developer)

	for _, c := range commits {
		key := identity.Key(c.Author.Name, c.Author.Email)
		d, ok := devs[key]
		if !ok {
			name := c.Author.Name
			if name == "" {
				name = analysis.Unknown
			}
			d = &developer{
				ranking: DeveloperRanking{
					DeveloperName:  name,
					DeveloperEmail: c.Author.Email,
					LastCommitDate: c.Author.Date,
				},
				projects:     map[string]struct{}{},
				repositories: map[string]struct{}{},
			}
			devs[key] = d
		}

		d.ranking.CommitCount++
		d.ranking.Score += CommitScore(c.Author.Date, now)
		if c.Author.Date.After(d.ranking.LastCommitDate) {
			d.ranking.LastCommitDate = c.Author.Date
		}
		d.projects[c.ProjectName] = struct{}{}
		d.repositories[c.RepositoryName] = struct{}{}
	}

	rankings := make([]DeveloperRanking, 0, len(devs))
	for _, d := range devs {
		d.ranking.ProjectsContributed = len(d.projects)
		d.ranking.RepositoriesContributed = len(d.repositories)
		rankings = append(rankings, d.ranking)
	}

	sort.Slice(rankings, func(i, j int) bool {
		a, b := rankings[i], rankings[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CommitCount != b.CommitCount {
			return a.CommitCount > b.CommitCount
		}
		if a.DeveloperName != b.DeveloperName {
			return a.DeveloperName < b.DeveloperName
		}
		return a.DeveloperEmail < b.DeveloperEmail
	})
	return rankings
}

// Top returns at most n leading entries
func Top(rankings []DeveloperRanking, n int) []DeveloperRanking {
	if n >= 0 && len(rankings) > n {
		return rankings[:n]
	}
	return rankings
}
