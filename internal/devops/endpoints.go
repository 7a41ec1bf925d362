package devops

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CommitQuery filters a commit listing
type CommitQuery struct {
	From   time.Time `url:"searchCriteria.fromDate,omitempty"`
	To     time.Time `url:"searchCriteria.toDate,omitempty"`
	Author string    `url:"searchCriteria.author,omitempty"`
	Top    int       `url:"$top,omitempty"`
	Skip   int       `url:"$skip,omitempty"`
}

// BuildQuery filters a build listing
type BuildQuery struct {
	MinTime      time.Time `url:"minTime,omitempty"`
	MaxTime      time.Time `url:"maxTime,omitempty"`
	ResultFilter string    `url:"resultFilter,omitempty"`
	Top          int       `url:"$top,omitempty"`
	Skip         int       `url:"$skip,omitempty"`
}

// PullRequestQuery filters a pull request listing
type PullRequestQuery struct {
	Status  string    `url:"searchCriteria.status,omitempty"`
	MinTime time.Time `url:"searchCriteria.minTime,omitempty"`
	MaxTime time.Time `url:"searchCriteria.maxTime,omitempty"`
}

type diffQuery struct {
	Path string `url:"path"`
}

type workItemsQuery struct {
	IDs    string `url:"ids"`
	Fields string `url:"fields,omitempty"`
}

type coverageQuery struct {
	BuildID int `url:"buildId"`
}

func (q CommitQuery) utc() CommitQuery {
	q.From, q.To = utc(q.From), utc(q.To)
	return q
}

func (q BuildQuery) utc() BuildQuery {
	q.MinTime, q.MaxTime = utc(q.MinTime), utc(q.MaxTime)
	return q
}

func (q PullRequestQuery) utc() PullRequestQuery {
	q.MinTime, q.MaxTime = utc(q.MinTime), utc(q.MaxTime)
	return q
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// ListProjects lists the projects of an organization
func (c *Client) ListProjects(ctx context.Context, org string) ([]Project, error) {
	u, err := c.endpointURL([]string{org, "_apis", "projects"}, versionProjects, nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse[Project]
	if err := c.getJSON(ctx, "projects", u, &resp); err != nil {
		return nil, fmt.Errorf("list projects of %s: %w", org, err)
	}
	return orEmpty(resp.Value), nil
}

// ListRepositories lists repositories of one project, or of the whole
// organization when project is empty
func (c *Client) ListRepositories(ctx context.Context, org, project string) ([]Repository, error) {
	segments := []string{org}
	if project != "" {
		segments = append(segments, project)
	}
	segments = append(segments, "_apis", "git", "repositories")

	u, err := c.endpointURL(segments, versionRepositories, nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse[Repository]
	if err := c.getJSON(ctx, "repositories", u, &resp); err != nil {
		return nil, fmt.Errorf("list repositories of %s/%s: %w", org, project, err)
	}
	return orEmpty(resp.Value), nil
}

// ListCommits returns one page of commits of a repository
func (c *Client) ListCommits(ctx context.Context, org, project, repoID string, q CommitQuery) ([]CommitRef, error) {
	u, err := c.endpointURL([]string{org, project, "_apis", "git", "repositories", repoID, "commits"}, versionGit, q.utc())
	if err != nil {
		return nil, err
	}

	var resp listResponse[CommitRef]
	if err := c.getJSON(ctx, "commits", u, &resp); err != nil {
		return nil, fmt.Errorf("list commits of %s/%s: %w", project, repoID, err)
	}
	return orEmpty(resp.Value), nil
}

// GetCommitChanges returns the change list of one commit
func (c *Client) GetCommitChanges(ctx context.Context, org, project, repoID, commitID string) ([]Change, error) {
	u, err := c.endpointURL([]string{org, project, "_apis", "git", "repositories", repoID, "commits", commitID, "changes"}, versionGit, nil)
	if err != nil {
		return nil, err
	}

	var resp changesResponse
	if err := c.getJSON(ctx, "changes", u, &resp); err != nil {
		return nil, fmt.Errorf("get changes of commit %s: %w", commitID, err)
	}
	return orEmpty(resp.Changes), nil
}

// GetFileDiff returns the line-level diff of one file in a commit
func (c *Client) GetFileDiff(ctx context.Context, org, project, repoID, commitID, path string) ([]DiffChange, error) {
	u, err := c.endpointURL([]string{org, project, "_apis", "git", "repositories", repoID, "diffs", "commits", commitID}, versionGit, diffQuery{Path: path})
	if err != nil {
		return nil, err
	}

	var resp diffResponse
	if err := c.getJSON(ctx, "diff", u, &resp); err != nil {
		return nil, fmt.Errorf("get diff of %s in %s: %w", path, commitID, err)
	}
	return orEmpty(resp.Changes), nil
}

// ListBuilds returns one page of builds of a project
func (c *Client) ListBuilds(ctx context.Context, org, project string, q BuildQuery) ([]Build, error) {
	u, err := c.endpointURL([]string{org, project, "_apis", "build", "builds"}, versionBuilds, q.utc())
	if err != nil {
		return nil, err
	}

	var resp listResponse[Build]
	if err := c.getJSON(ctx, "builds", u, &resp); err != nil {
		return nil, fmt.Errorf("list builds of %s: %w", project, err)
	}
	return orEmpty(resp.Value), nil
}

// ListPullRequests lists pull requests of a repository
func (c *Client) ListPullRequests(ctx context.Context, org, project, repoID string, q PullRequestQuery) ([]PullRequest, error) {
	u, err := c.endpointURL([]string{org, project, "_apis", "git", "repositories", repoID, "pullrequests"}, versionGit, q.utc())
	if err != nil {
		return nil, err
	}

	var resp listResponse[PullRequest]
	if err := c.getJSON(ctx, "pullrequests", u, &resp); err != nil {
		return nil, fmt.Errorf("list pull requests of %s/%s: %w", project, repoID, err)
	}
	return orEmpty(resp.Value), nil
}

// QueryWorkItems runs a WIQL query and returns the matching ids
func (c *Client) QueryWorkItems(ctx context.Context, org, project, wiql string) ([]WorkItemRef, error) {
	u, err := c.endpointURL([]string{org, project, "_apis", "wit", "wiql"}, versionWIQL, nil)
	if err != nil {
		return nil, err
	}

	var resp wiqlResponse
	if err := c.postJSON(ctx, "wiql", u, wiqlRequest{Query: wiql}, &resp); err != nil {
		return nil, fmt.Errorf("query work items of %s: %w", project, err)
	}
	return orEmpty(resp.WorkItems), nil
}

// GetWorkItems fetches the given fields of a batch of work items
func (c *Client) GetWorkItems(ctx context.Context, org, project string, ids []int, fields []string) ([]WorkItem, error) {
	if len(ids) == 0 {
		return []WorkItem{}, nil
	}

	idList := make([]string, len(ids))
	for i, id := range ids {
		idList[i] = strconv.Itoa(id)
	}

	q := workItemsQuery{IDs: strings.Join(idList, ","), Fields: strings.Join(fields, ",")}
	u, err := c.endpointURL([]string{org, project, "_apis", "wit", "workitems"}, versionWorkItems, q)
	if err != nil {
		return nil, err
	}

	var resp listResponse[WorkItem]
	if err := c.getJSON(ctx, "workitems", u, &resp); err != nil {
		return nil, fmt.Errorf("get work items of %s: %w", project, err)
	}
	return orEmpty(resp.Value), nil
}

// GetCodeCoverage returns the coverage data recorded for a build
func (c *Client) GetCodeCoverage(ctx context.Context, org, project string, buildID int) ([]CoverageData, error) {
	u, err := c.endpointURL([]string{org, project, "_apis", "test", "codecoverage"}, versionCoverage, coverageQuery{BuildID: buildID})
	if err != nil {
		return nil, err
	}

	var resp coverageResponse
	if err := c.getJSON(ctx, "coverage", u, &resp); err != nil {
		return nil, fmt.Errorf("get coverage of build %d: %w", buildID, err)
	}
	return orEmpty(resp.CoverageData), nil
}

// orEmpty turns a missing or null collection into an empty one
func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
