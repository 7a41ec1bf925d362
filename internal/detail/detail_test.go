package detail

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops/devopstest"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/logging"
)

func TestCategorizeCommit(t *testing.T) {
	tests := []struct {
		message string
		want    Category
	}{
		{"fix test flakiness", CategoryBugFix},
		{"Handle ERROR path", CategoryBugFix},
		{"add spec for parser", CategoryTest},
		{"Refactor and add helpers", CategoryRefactoring},
		{"code cleanup", CategoryRefactoring},
		{"update README", CategoryDocumentation},
		{"tweak app.config settings", CategoryConfiguration},
		{"feat: login page", CategoryFeature},
		{"implement caching", CategoryFeature},
		{"bump version", CategoryOther},
		{"", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeCommit(tt.message))
		})
	}
}

func TestCategorizeSize_Boundaries(t *testing.T) {
	tests := []struct {
		total int
		want  SizeBucket
	}{
		{0, SizeSmall},
		{9, SizeSmall},
		{10, SizeMedium},
		{99, SizeMedium},
		{100, SizeLarge},
		{499, SizeLarge},
		{500, SizeHuge},
		{10000, SizeHuge},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CategorizeSize(tt.total), "total=%d", tt.total)
	}
}

func TestEstimateFileSize(t *testing.T) {
	tests := map[string]int{
		"/src/Program.cs":   50,
		"/cmd/main.go":      50,
		"/web/INDEX.HTML":   30,
		"/styles/site.scss": 25,
		"/README.md":        20,
		"/app.config":       15,
		"/ci/build.yaml":    15,
		"/bin/tool":         10,
		"":                  10,
	}
	for p, want := range tests {
		assert.Equal(t, want, EstimateFileSize(p), p)
	}
}

func rawCommit(id, repoID, message string) devops.CommitRef {
	return devops.CommitRef{
		CommitID:       id,
		Author:         devops.GitUserDate{Name: "Alice", Email: "alice@example.com", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		Comment:        message,
		ProjectName:    "Web",
		RepositoryName: "site",
		RepositoryID:   repoID,
	}
}

func change(changeType, path string) devops.Change {
	return devops.Change{ChangeType: changeType, Item: &devops.Item{Path: path}}
}

func newResolver(fake *devopstest.Server, maxCommits int) *Resolver {
	cfg := config.Default().Crawl
	cfg.MaxDetailCommits = maxCommits
	return NewResolver(fake.Client("pat"), cfg, logging.Discard(), WithLimiter(rate.NewLimiter(rate.Inf, 0)))
}

func TestResolve_DiffCountsAndFallbacks(t *testing.T) {
	fake := devopstest.New(t)
	fake.SetChanges("c1",
		change("edit", "/src/App.CS"),      // exact diff: +2 -1
		change("add", "/docs/guide.md"),    // diff fails: +20
		change("edit", "/web/site.css"),    // diff fails: +5 -3
		change("delete", "/old/data.json"), // -30
		change("rename", "/src/app.cs"),    // ignored for counts
	)
	fake.SetDiff("c1", "/src/App.CS",
		devops.DiffChange{ChangeType: "add"},
		devops.DiffChange{ChangeType: "add"},
		devops.DiffChange{ChangeType: "delete"},
		devops.DiffChange{ChangeType: "none"},
	)

	detailed, err := newResolver(fake, 100).Resolve(context.Background(), "contoso",
		[]devops.CommitRef{rawCommit("c1", "r1", "add user guide")}, "")
	require.NoError(t, err)
	require.Len(t, detailed, 1)

	d := detailed[0]
	assert.Equal(t, 2+20+5, d.LinesAdded)
	assert.Equal(t, 1+3+30, d.LinesDeleted)
	assert.Equal(t, d.LinesAdded+d.LinesDeleted, d.TotalChanges)
	assert.Equal(t, 5, d.FilesChanged)
	assert.Equal(t, []string{".cs", ".md", ".css", ".json"}, d.FileTypes)
	assert.Equal(t, CategoryFeature, d.Category)
	assert.Equal(t, SizeMedium, d.Size)
	assert.Equal(t, "Alice", d.Author)
	assert.Equal(t, "alice@example.com", d.AuthorEmail)
	assert.Equal(t, "Web", d.ProjectName)
}

func TestResolve_FiltersByRepositoryAndCaps(t *testing.T) {
	fake := devopstest.New(t)
	var commits []devops.CommitRef
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("c%d", i)
		repo := "r1"
		if i%2 == 1 {
			repo = "r2"
		}
		commits = append(commits, rawCommit(id, repo, "work"))
		fake.SetChanges(id, change("delete", "/x.txt"))
	}

	// The cap takes c0..c3; the filter then keeps the r2 commits among them
	detailed, err := newResolver(fake, 4).Resolve(context.Background(), "contoso", commits, "r2")
	require.NoError(t, err)
	require.Len(t, detailed, 2)
	assert.Equal(t, "c1", detailed[0].CommitID)
	assert.Equal(t, "c3", detailed[1].CommitID)
	assert.Equal(t, 2, fake.Calls("changes"))

	all, err := newResolver(fake, 4).Resolve(context.Background(), "contoso", commits, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestResolve_CapAppliesBeforeRepositoryFilter(t *testing.T) {
	fake := devopstest.New(t)
	var commits []devops.CommitRef
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("c%d", i)
		repo := "r1"
		if i >= 3 {
			repo = "r2"
		}
		commits = append(commits, rawCommit(id, repo, "work"))
		fake.SetChanges(id, change("delete", "/x.txt"))
	}

	detailed, err := newResolver(fake, 3).Resolve(context.Background(), "contoso", commits, "r2")
	require.NoError(t, err)
	assert.Empty(t, detailed)
	assert.Zero(t, fake.Calls("changes"))

	attached, err := newResolver(fake, 3).AttachChanges(context.Background(), "contoso", commits, "r2")
	require.NoError(t, err)
	assert.Empty(t, attached)
}

func TestResolve_DropsMissingAndFailingCommits(t *testing.T) {
	fake := devopstest.New(t)
	fake.SetChanges("ok", change("delete", "/a.md"))
	fake.SetChanges("broken", change("delete", "/b.md"))
	fake.FailPath("/commits/broken/", http.StatusInternalServerError)
	// "gone" has no registered changes: the fake answers 404

	detailed, err := newResolver(fake, 100).Resolve(context.Background(), "contoso", []devops.CommitRef{
		rawCommit("gone", "r1", "x"),
		rawCommit("broken", "r1", "x"),
		rawCommit("ok", "r1", "x"),
	}, "")
	require.NoError(t, err)
	require.Len(t, detailed, 1)
	assert.Equal(t, "ok", detailed[0].CommitID)
}

func TestResolve_AuthorizationFailureAborts(t *testing.T) {
	t.Run("changes", func(t *testing.T) {
		fake := devopstest.New(t)
		fake.Fail("changes", http.StatusUnauthorized)

		_, err := newResolver(fake, 100).Resolve(context.Background(), "contoso",
			[]devops.CommitRef{rawCommit("c1", "r1", "x")}, "")
		assert.True(t, errors.IsAuthorization(err))
	})

	t.Run("diff", func(t *testing.T) {
		fake := devopstest.New(t)
		fake.SetChanges("c1", change("edit", "/a.go"))
		fake.Fail("diff", http.StatusForbidden)

		_, err := newResolver(fake, 100).Resolve(context.Background(), "contoso",
			[]devops.CommitRef{rawCommit("c1", "r1", "x")}, "")
		assert.True(t, errors.IsAuthorization(err))
	})
}

func TestResolve_MissingPathsAndUnknownNames(t *testing.T) {
	fake := devopstest.New(t)
	fake.SetChanges("c1", devops.Change{ChangeType: "edit"}, devops.Change{ChangeType: "delete"})

	c := rawCommit("c1", "r1", "fix crash")
	c.RepositoryName = ""

	detailed, err := newResolver(fake, 100).Resolve(context.Background(), "contoso", []devops.CommitRef{c}, "")
	require.NoError(t, err)
	require.Len(t, detailed, 1)

	d := detailed[0]
	assert.Equal(t, 0, d.LinesAdded, "an edit without a path has no diff to read")
	assert.Equal(t, 10, d.LinesDeleted)
	assert.Empty(t, d.FileTypes)
	assert.Equal(t, "Web", d.ProjectName)
	assert.Equal(t, "Unknown", d.RepositoryName)
	assert.Equal(t, 0, fake.Calls("diff"))
}

func TestAttachChanges(t *testing.T) {
	fake := devopstest.New(t)
	fake.SetChanges("c1", change("edit", "/a.go"), change("add", "/b.md"))
	fake.SetChanges("c3", change("delete", "/c.cs"))

	commits := []devops.CommitRef{
		rawCommit("c1", "r1", "one"),
		rawCommit("c2", "r1", "two"), // no change list: 404
		rawCommit("c3", "r1", "three"),
		rawCommit("c4", "r1", "four"),
	}

	attached, err := newResolver(fake, 3).AttachChanges(context.Background(), "contoso", commits, "")
	require.NoError(t, err)
	require.Len(t, attached, 3)

	assert.Len(t, attached[0].Changes, 2)
	assert.Empty(t, attached[1].Changes, "a commit without readable changes is kept")
	assert.Equal(t, "/c.cs", attached[2].Changes[0].Path())
	assert.Equal(t, 3, fake.Calls("changes"))
	assert.Nil(t, commits[0].Changes, "input is not modified")
}

func TestAttachChanges_FiltersRepository(t *testing.T) {
	fake := devopstest.New(t)
	fake.SetChanges("c2", change("edit", "/a.go"))

	attached, err := newResolver(fake, 100).AttachChanges(context.Background(), "contoso", []devops.CommitRef{
		rawCommit("c1", "r1", "one"),
		rawCommit("c2", "r2", "two"),
	}, "r2")
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, "c2", attached[0].CommitID)
}

func TestAttachChanges_AuthorizationAborts(t *testing.T) {
	fake := devopstest.New(t)
	fake.Fail("changes", http.StatusUnauthorized)

	_, err := newResolver(fake, 100).AttachChanges(context.Background(), "contoso",
		[]devops.CommitRef{rawCommit("c1", "r1", "x")}, "")
	assert.True(t, errors.IsAuthorization(err))
}
