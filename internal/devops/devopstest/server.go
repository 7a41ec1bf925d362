// Package devopstest runs an in-memory fake of the Azure DevOps REST API
// for tests.
package devopstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
)

// Server serves fixtures registered through its Add/Set methods. All
// fixture access is guarded so handlers and tests never race.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	token        string
	projects     []devops.Project
	repos        map[string][]devops.Repository
	commits      map[string][]devops.CommitRef
	changes      map[string][]devops.Change
	diffs        map[string][]devops.DiffChange
	builds       map[string][]devops.Build
	pullRequests map[string][]devops.PullRequest
	workItems    map[string][]devops.WorkItem
	coverage     map[int][]devops.CoverageData
	failures     map[string]int
	failKeys     map[string]int
	calls        map[string]int
	queries      map[string][]string
}

// New starts a fake server that is closed when the test ends
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		repos:        make(map[string][]devops.Repository),
		commits:      make(map[string][]devops.CommitRef),
		changes:      make(map[string][]devops.Change),
		diffs:        make(map[string][]devops.DiffChange),
		builds:       make(map[string][]devops.Build),
		pullRequests: make(map[string][]devops.PullRequest),
		workItems:    make(map[string][]devops.WorkItem),
		coverage:     make(map[int][]devops.CoverageData),
		failures:     make(map[string]int),
		failKeys:     make(map[string]int),
		calls:        make(map[string]int),
		queries:      make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{org}/_apis/projects", s.guard("projects", s.handleProjects))
	mux.HandleFunc("GET /{org}/_apis/git/repositories", s.guard("repositories", s.handleRepositories))
	mux.HandleFunc("GET /{org}/{project}/_apis/git/repositories", s.guard("repositories", s.handleRepositories))
	mux.HandleFunc("GET /{org}/{project}/_apis/git/repositories/{repo}/commits", s.guard("commits", s.handleCommits))
	mux.HandleFunc("GET /{org}/{project}/_apis/git/repositories/{repo}/commits/{id}/changes", s.guard("changes", s.handleChanges))
	mux.HandleFunc("GET /{org}/{project}/_apis/git/repositories/{repo}/diffs/commits/{id}", s.guard("diff", s.handleDiff))
	mux.HandleFunc("GET /{org}/{project}/_apis/git/repositories/{repo}/pullrequests", s.guard("pullrequests", s.handlePullRequests))
	mux.HandleFunc("GET /{org}/{project}/_apis/build/builds", s.guard("builds", s.handleBuilds))
	mux.HandleFunc("POST /{org}/{project}/_apis/wit/wiql", s.guard("wiql", s.handleWIQL))
	mux.HandleFunc("GET /{org}/{project}/_apis/wit/workitems", s.guard("workitems", s.handleWorkItems))
	mux.HandleFunc("GET /{org}/{project}/_apis/test/codecoverage", s.guard("coverage", s.handleCoverage))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Client returns a client bound to token with no rate limiting and no retries
func (s *Server) Client(token string) *devops.Client {
	cfg := config.Default().Upstream
	cfg.BaseURL = s.URL
	cfg.MaxRetries = 0
	cfg.Timeout = 5 * time.Second
	return devops.New(cfg, devops.WithLimiter(rate.NewLimiter(rate.Inf, 0))).WithToken(token)
}

// RequireToken rejects requests whose basic credentials differ from token
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Fail makes every call to endpoint answer with status
func (s *Server) Fail(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = status
}

// FailPath makes calls whose path contains fragment answer with status
func (s *Server) FailPath(fragment string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failKeys[fragment] = status
}

// Calls reports how many requests endpoint has served
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// Queries returns the raw query strings endpoint received, in order
func (s *Server) Queries(endpoint string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries[endpoint]...)
}

// AddProject registers a project with its repositories
func (s *Server) AddProject(name string, repos ...devops.Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := devops.Project{ID: "p-" + name, Name: name}
	s.projects = append(s.projects, p)
	for i := range repos {
		repos[i].Project = &p
	}
	s.repos[name] = append(s.repos[name], repos...)
}

// AddCommits appends commits to a repository, newest first as the API returns them
func (s *Server) AddCommits(repoID string, commits ...devops.CommitRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[repoID] = append(s.commits[repoID], commits...)
}

// SetChanges registers the change list of a commit
func (s *Server) SetChanges(commitID string, changes ...devops.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[commitID] = changes
}

// SetDiff registers the diff of one file in a commit
func (s *Server) SetDiff(commitID, path string, lines ...devops.DiffChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diffs[commitID+"|"+path] = lines
}

// AddBuilds appends builds to a project
func (s *Server) AddBuilds(project string, builds ...devops.Build) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds[project] = append(s.builds[project], builds...)
}

// AddPullRequests appends pull requests to a repository
func (s *Server) AddPullRequests(repoID string, prs ...devops.PullRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pullRequests[repoID] = append(s.pullRequests[repoID], prs...)
}

// AddWorkItems appends work items to a project
func (s *Server) AddWorkItems(project string, items ...devops.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workItems[project] = append(s.workItems[project], items...)
}

// SetCoverage registers the coverage of a build
func (s *Server) SetCoverage(buildID int, data ...devops.CoverageData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coverage[buildID] = data
}

// guard counts the call, checks credentials and injected failures. The
// handler runs with mu held.
func (s *Server) guard(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.calls[endpoint]++
		s.queries[endpoint] = append(s.queries[endpoint], r.URL.RawQuery)

		if s.token != "" {
			_, pass, ok := r.BasicAuth()
			if !ok || pass != s.token {
				http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
		}
		if status, ok := s.failures[endpoint]; ok {
			http.Error(w, `{"message":"injected failure"}`, status)
			return
		}
		for fragment, status := range s.failKeys {
			if strings.Contains(r.URL.Path, fragment) || strings.Contains(r.URL.RawQuery, fragment) {
				http.Error(w, `{"message":"injected failure"}`, status)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	writeList(w, s.projects)
}

func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	if project != "" {
		repos, ok := s.repos[project]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeList(w, repos)
		return
	}

	var all []devops.Repository
	for _, p := range s.projects {
		all = append(all, s.repos[p.Name]...)
	}
	writeList(w, all)
}

func (s *Server) handleCommits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := parseTime(q.Get("searchCriteria.fromDate"))
	to := parseTime(q.Get("searchCriteria.toDate"))
	author := strings.ToLower(q.Get("searchCriteria.author"))

	var matched []devops.CommitRef
	for _, c := range s.commits[r.PathValue("repo")] {
		if !from.IsZero() && c.Author.Date.Before(from) {
			continue
		}
		if !to.IsZero() && c.Author.Date.After(to) {
			continue
		}
		if author != "" && !strings.Contains(strings.ToLower(c.Author.Name), author) &&
			!strings.Contains(strings.ToLower(c.Author.Email), author) {
			continue
		}
		// The listing endpoint never carries change lists
		c.Changes = nil
		matched = append(matched, c)
	}
	writeList(w, page(matched, q.Get("$skip"), q.Get("$top")))
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	changes, ok := s.changes[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{"changes": changes})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.diffs[r.PathValue("id")+"|"+r.URL.Query().Get("path")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{"changes": lines})
}

func (s *Server) handlePullRequests(w http.ResponseWriter, r *http.Request) {
	writeList(w, s.pullRequests[r.PathValue("repo")])
}

func (s *Server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minTime := parseTime(q.Get("minTime"))
	maxTime := parseTime(q.Get("maxTime"))
	resultFilter := q.Get("resultFilter")

	var matched []devops.Build
	for _, b := range s.builds[r.PathValue("project")] {
		if resultFilter != "" && b.Result != resultFilter {
			continue
		}
		if b.FinishTime != nil {
			if !minTime.IsZero() && b.FinishTime.Before(minTime) {
				continue
			}
			if !maxTime.IsZero() && b.FinishTime.After(maxTime) {
				continue
			}
		}
		matched = append(matched, b)
	}
	writeList(w, page(matched, q.Get("$skip"), q.Get("$top")))
}

func (s *Server) handleWIQL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Query == "" {
		http.Error(w, `{"message":"missing query"}`, http.StatusBadRequest)
		return
	}

	refs := []devops.WorkItemRef{}
	for _, wi := range s.workItems[r.PathValue("project")] {
		refs = append(refs, devops.WorkItemRef{ID: wi.ID})
	}
	writeJSON(w, map[string]any{"workItems": refs})
}

func (s *Server) handleWorkItems(w http.ResponseWriter, r *http.Request) {
	wanted := map[int]bool{}
	for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id, err := strconv.Atoi(raw); err == nil {
			wanted[id] = true
		}
	}

	var items []devops.WorkItem
	for _, wi := range s.workItems[r.PathValue("project")] {
		if wanted[wi.ID] {
			items = append(items, wi)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	writeList(w, items)
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.URL.Query().Get("buildId"))
	data, ok := s.coverage[id]
	if !ok {
		writeJSON(w, map[string]any{"coverageData": nil})
		return
	}
	writeJSON(w, map[string]any{"coverageData": data})
}

func page[T any](items []T, rawSkip, rawTop string) []T {
	skip, _ := strconv.Atoi(rawSkip)
	top, err := strconv.Atoi(rawTop)
	if err != nil || top <= 0 {
		top = len(items)
	}
	if skip >= len(items) {
		return []T{}
	}
	end := skip + top
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, map[string]any{"count": len(items), "value": items})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
