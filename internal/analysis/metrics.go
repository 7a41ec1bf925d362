package analysis

import (
	"sort"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
)

// Count is one group of a breakdown
type Count struct {
	Key   string `json:"key" yaml:"key"`
	Count int    `json:"count" yaml:"count"`
}

// CommitMetrics is the commit breakdown of a query window
type CommitMetrics struct {
	TotalCommits        int     `json:"totalCommits" yaml:"totalCommits"`
	CommitsByAuthor     []Count `json:"commitsByAuthor" yaml:"commitsByAuthor"`
	CommitsByDate       []Count `json:"commitsByDate" yaml:"commitsByDate"`
	CommitsByProject    []Count `json:"commitsByProject" yaml:"commitsByProject"`
	CommitsByRepository []Count `json:"commitsByRepository" yaml:"commitsByRepository"`
}

// Summarize groups commits by author, UTC calendar day, project and repository
func Summarize(commits []devops.CommitRef, identity Identity) CommitMetrics {
	byAuthor := newCounter()
	byDate := newCounter()
	byProject := newCounter()
	byRepo := newCounter()

	for _, c := range commits {
		byAuthor.add(identity.Key(c.Author.Name, c.Author.Email))
		byDate.add(c.Author.Date.UTC().Format("2006-01-02"))
		byProject.add(orUnknown(c.ProjectName))
		byRepo.add(orUnknown(c.RepositoryName))
	}

	return CommitMetrics{
		TotalCommits:        len(commits),
		CommitsByAuthor:     byAuthor.sorted(),
		CommitsByDate:       byDate.sorted(),
		CommitsByProject:    byProject.sorted(),
		CommitsByRepository: byRepo.sorted(),
	}
}

type counter map[string]int

func newCounter() counter { return counter{} }

func (c counter) add(key string) { c[key]++ }

// sorted orders groups by count descending, then key ascending
func (c counter) sorted() []Count {
	out := make([]Count, 0, len(c))
	for k, n := range c {
		out = append(out, Count{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
