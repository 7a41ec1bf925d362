// Package graph builds the bipartite author/file collaboration graph from
// commit change lists.
package graph

import (
	"path"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/analysis"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
)

// Node types
const (
	NodeFile   = "file"
	NodeAuthor = "author"
)

// GraphNode is a file or an author
type GraphNode struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	CommitCount int    `json:"commitCount" yaml:"commitCount"`
	ProjectName string `json:"projectName" yaml:"projectName"`
}

// GraphLink connects an author to a file they modified. Weight is the number
// of distinct commits in which the author touched the file.
type GraphLink struct {
	Source      string `json:"source" yaml:"source"`
	Target      string `json:"target" yaml:"target"`
	Weight      int    `json:"weight" yaml:"weight"`
	ProjectName string `json:"projectName" yaml:"projectName"`
}

// CodeGraphData is the node and link set returned to callers
type CodeGraphData struct {
	Nodes []GraphNode `json:"nodes" yaml:"nodes"`
	Links []GraphLink `json:"links" yaml:"links"`
}

// Empty is the graph of a scope without repositories
func Empty() CodeGraphData {
	return CodeGraphData{Nodes: []GraphNode{}, Links: []GraphLink{}}
}

// SelectRepository picks the repository with id, falling back to the first
// one. It reports false when repos is empty.
func SelectRepository(repos []devops.Repository, id string) (devops.Repository, bool) {
	if len(repos) == 0 {
		return devops.Repository{}, false
	}
	if id != "" {
		for _, r := range repos {
			if r.ID == id {
				return r, true
			}
		}
	}
	return repos[0], true
}

// projectTally finds the most frequent project; ties go to the first seen
type projectTally struct {
	counts map[string]int
	best   string
}

func newProjectTally() *projectTally {
	return &projectTally{counts: map[string]int{}}
}

func (t *projectTally) add(project string) {
	t.counts[project]++
	if t.best == "" || t.counts[project] > t.counts[t.best] {
		t.best = project
	}
}

type nodeState struct {
	node     GraphNode
	projects *projectTally
}

type linkKey struct {
	author string
	file   string
}

// Build derives the graph from commits carrying change lists. Nodes list
// files then authors, each in first-seen order; links are in first-seen
// order too.
func Build(commits []devops.CommitRef, identity analysis.Identity) CodeGraphData {
	var fileOrder, authorOrder []string
	files := map[string]*nodeState{}
	authors := map[string]*nodeState{}

	var linkOrder []linkKey
	links := map[linkKey]*GraphLink{}

	for _, c := range commits {
		project := c.ProjectName
		if project == "" {
			project = analysis.Unknown
		}

		authorID := identity.Key(c.Author.Name, c.Author.Email)
		a, ok := authors[authorID]
		if !ok {
			a = &nodeState{
				node:     GraphNode{ID: authorID, Name: authorName(c), Type: NodeAuthor},
				projects: newProjectTally(),
			}
			authors[authorID] = a
			authorOrder = append(authorOrder, authorID)
		}
		a.node.CommitCount++
		a.projects.add(project)

		// A file listed twice in one commit still counts once
		touched := map[string]bool{}
		for _, change := range c.Changes {
			p := change.Path()
			if p == "" || touched[p] {
				continue
			}
			touched[p] = true

			f, ok := files[p]
			if !ok {
				f = &nodeState{
					node:     GraphNode{ID: p, Name: path.Base(p), Type: NodeFile},
					projects: newProjectTally(),
				}
				files[p] = f
				fileOrder = append(fileOrder, p)
			}
			f.node.CommitCount++
			f.projects.add(project)

			key := linkKey{author: authorID, file: p}
			if l, ok := links[key]; ok {
				l.Weight++
				continue
			}
			links[key] = &GraphLink{Source: authorID, Target: p, Weight: 1, ProjectName: project}
			linkOrder = append(linkOrder, key)
		}
	}

	data := CodeGraphData{
		Nodes: make([]GraphNode, 0, len(fileOrder)+len(authorOrder)),
		Links: make([]GraphLink, 0, len(linkOrder)),
	}
	for _, id := range fileOrder {
		data.Nodes = append(data.Nodes, files[id].finish())
	}
	for _, id := range authorOrder {
		data.Nodes = append(data.Nodes, authors[id].finish())
	}
	for _, key := range linkOrder {
		data.Links = append(data.Links, *links[key])
	}
	return data
}

func (s *nodeState) finish() GraphNode {
	s.node.ProjectName = s.projects.best
	return s.node
}

func authorName(c devops.CommitRef) string {
	if c.Author.Name == "" {
		return analysis.Unknown
	}
	return c.Author.Name
}
