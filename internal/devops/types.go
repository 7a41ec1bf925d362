package devops

import "time"

// Project is a container of repositories, builds and work items
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Repository is a git repository inside a project
type Repository struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Project *Project `json:"project,omitempty"`
}

// GitUserDate identifies a commit author at a point in time
type GitUserDate struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// Item is the versioned object a change touched
type Item struct {
	Path string `json:"path"`
}

// Change is one entry in a commit's change list
type Change struct {
	Item       *Item  `json:"item,omitempty"`
	ChangeType string `json:"changeType"`
}

// Path returns the changed path, "" when the upstream omitted the item
func (c Change) Path() string {
	if c.Item == nil {
		return ""
	}
	return c.Item.Path
}

// CommitRef is a raw commit record. ProjectName, RepositoryName and
// RepositoryID are filled in by the crawler.
type CommitRef struct {
	CommitID string      `json:"commitId"`
	Author   GitUserDate `json:"author"`
	Comment  string      `json:"comment"`
	Changes  []Change    `json:"changes,omitempty"`

	ProjectName    string `json:"projectName,omitempty"`
	RepositoryName string `json:"repositoryName,omitempty"`
	RepositoryID   string `json:"repositoryId,omitempty"`
}

// DiffChange is one line-level entry of a file diff
type DiffChange struct {
	ChangeType string `json:"changeType"`
	LineNumber int    `json:"lineNumber"`
	Content    string `json:"content"`
}

// Build is a pipeline run
type Build struct {
	ID         int        `json:"id"`
	Result     string     `json:"result"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	FinishTime *time.Time `json:"finishTime,omitempty"`
}

// Duration returns the run time, false when either timestamp is missing
func (b Build) Duration() (time.Duration, bool) {
	if b.StartTime == nil || b.FinishTime == nil {
		return 0, false
	}
	return b.FinishTime.Sub(*b.StartTime), true
}

// PullRequest is a pull request summary
type PullRequest struct {
	PullRequestID int        `json:"pullRequestId"`
	Status        string     `json:"status"`
	MergeStatus   string     `json:"mergeStatus"`
	CreationDate  *time.Time `json:"creationDate,omitempty"`
	ClosedDate    *time.Time `json:"closedDate,omitempty"`
}

// OpenDuration returns how long the pull request stayed open
func (p PullRequest) OpenDuration() (time.Duration, bool) {
	if p.CreationDate == nil || p.ClosedDate == nil {
		return 0, false
	}
	return p.ClosedDate.Sub(*p.CreationDate), true
}

// WorkItemRef is a WIQL query hit
type WorkItemRef struct {
	ID int `json:"id"`
}

// WorkItem carries the requested fields of one work item
type WorkItem struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Field returns a field rendered as a string, "" when absent
func (w WorkItem) Field(name string) string {
	v, ok := w.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// CoverageStat is one coverage counter of a build
type CoverageStat struct {
	Label   string `json:"label"`
	Total   int    `json:"total"`
	Covered int    `json:"covered"`
}

// CoverageData groups the coverage counters of one build configuration
type CoverageData struct {
	CoverageStats []CoverageStat `json:"coverageStats"`
}

// listResponse is the {count, value} envelope of list endpoints
type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

type changesResponse struct {
	Changes []Change `json:"changes"`
}

type diffResponse struct {
	Changes []DiffChange `json:"changes"`
}

type wiqlResponse struct {
	WorkItems []WorkItemRef `json:"workItems"`
}

type coverageResponse struct {
	CoverageData []CoverageData `json:"coverageData"`
}

type wiqlRequest struct {
	Query string `json:"query"`
}
