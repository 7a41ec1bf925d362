package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/detail"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func raw(author, email, project, repo string, date time.Time) devops.CommitRef {
	return devops.CommitRef{
		Author:         devops.GitUserDate{Name: author, Email: email, Date: date},
		ProjectName:    project,
		RepositoryName: repo,
	}
}

func TestSummarize(t *testing.T) {
	day := time.Date(2024, 6, 1, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	commits := []devops.CommitRef{
		raw("Alice", "alice@example.com", "Web", "site", day),
		raw("Alice", "alice@example.com", "Web", "api", day),
		raw("Bob", "bob@example.com", "", "", day.AddDate(0, 0, 1)),
		raw("Carol", "carol@example.com", "Core", "site", day.AddDate(0, 0, 1)),
	}

	m := Summarize(commits, IdentityName)
	assert.Equal(t, 4, m.TotalCommits)
	assert.Equal(t, []Count{{"Alice", 2}, {"Bob", 1}, {"Carol", 1}}, m.CommitsByAuthor)
	// 23:30 at UTC-3 is the next UTC day
	assert.Equal(t, []Count{{"2024-06-02", 2}, {"2024-06-03", 2}}, m.CommitsByDate)
	assert.Equal(t, []Count{{"Web", 2}, {"Core", 1}, {Unknown, 1}}, m.CommitsByProject)
	assert.Equal(t, []Count{{"site", 2}, {Unknown, 1}, {"api", 1}}, m.CommitsByRepository)
}

func TestSummarize_AuthorCountsSumToTotal(t *testing.T) {
	var commits []devops.CommitRef
	for i := 0; i < 37; i++ {
		name := fmt.Sprintf("dev%d", i%5)
		commits = append(commits, raw(name, name+"@example.com", "P", "R", now.AddDate(0, 0, -i)))
	}

	for _, identity := range []Identity{IdentityName, IdentityNameEmail} {
		m := Summarize(commits, identity)

		sum := 0
		seen := map[string]bool{}
		for _, c := range m.CommitsByAuthor {
			sum += c.Count
			assert.False(t, seen[c.Key], "duplicate author key %s", c.Key)
			seen[c.Key] = true
		}
		assert.Equal(t, m.TotalCommits, sum)
	}
}

func TestSummarize_Empty(t *testing.T) {
	m := Summarize(nil, IdentityName)
	assert.Zero(t, m.TotalCommits)
	assert.NotNil(t, m.CommitsByAuthor)
	assert.Empty(t, m.CommitsByAuthor)
}

func TestIdentity(t *testing.T) {
	commits := []devops.CommitRef{
		raw("Sam", "sam@one.example", "P", "R", now),
		raw("Sam", "SAM@two.example", "P", "R", now),
	}

	assert.Equal(t, []Count{{"Sam", 2}}, Summarize(commits, IdentityName).CommitsByAuthor)
	assert.Equal(t, []Count{
		{"Sam <sam@one.example>", 1},
		{"Sam <sam@two.example>", 1},
	}, Summarize(commits, IdentityNameEmail).CommitsByAuthor)

	assert.Equal(t, Unknown, IdentityName.Key("", "x@example.com"))
	assert.Equal(t, "Sam", IdentityNameEmail.Key("Sam", ""))

	id, err := ParseIdentity("")
	require.NoError(t, err)
	assert.Equal(t, IdentityName, id)

	id, err = ParseIdentity("NAME_EMAIL")
	require.NoError(t, err)
	assert.Equal(t, IdentityNameEmail, id)

	_, err = ParseIdentity("email")
	assert.True(t, errors.IsValidation(err))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 220.0, Round2(660.0/3))
	assert.Equal(t, 0.33, Round2(1.0/3))
	assert.Equal(t, 0.67, Round2(2.0/3))
	assert.Equal(t, 2.5, Round2(2.5))
	assert.Equal(t, -0.13, Round2(-0.125))
}

func detailed(id, author string, added, deleted int, date time.Time, category detail.Category, files int, types ...string) detail.DetailedCommit {
	total := added + deleted
	return detail.DetailedCommit{
		CommitID:     id,
		Author:       author,
		AuthorEmail:  author + "@example.com",
		Date:         date,
		LinesAdded:   added,
		LinesDeleted: deleted,
		TotalChanges: total,
		FilesChanged: files,
		FileTypes:    types,
		Category:     category,
		Size:         detail.CategorizeSize(total),
	}
}

func TestAnalyze_AliceAndBob(t *testing.T) {
	commits := []detail.DetailedCommit{
		detailed("a1", "Alice", 8, 2, now.AddDate(0, 0, -3), detail.CategoryBugFix, 1, ".cs"),
		detailed("a2", "Alice", 40, 10, now.AddDate(0, 0, -2), detail.CategoryTest, 2, ".cs", ".spec"),
		detailed("a3", "Alice", 500, 100, now.AddDate(0, 0, -1), detail.CategoryFeature, 5, ".cs", ".md"),
		detailed("b1", "Bob", 3, 2, now, detail.CategoryDocumentation, 1, ".txt"),
	}

	a := Analyze(commits, IdentityName, now)
	assert.Equal(t, 4, a.TotalCommits)
	assert.Equal(t, now, a.AnalysisDate)

	// Size distribution: Alice Small=1 Medium=1 Huge=1, Bob Small=1
	s := a.SizeMetrics
	assert.Equal(t, 2, s.CommitsSmall)
	assert.Equal(t, 1, s.CommitsMedium)
	assert.Equal(t, 0, s.CommitsLarge)
	assert.Equal(t, 1, s.CommitsHuge)
	assert.Equal(t, 551, s.TotalLinesAdded)
	assert.Equal(t, 114, s.TotalLinesDeleted)
	assert.Equal(t, s.TotalLinesAdded-s.TotalLinesDeleted, s.NetLinesChanged)
	assert.Equal(t, 600, s.LargestCommitSize)
	assert.Equal(t, 5, s.SmallestCommitSize)
	assert.Equal(t, 166.25, s.AverageLinesPerCommit)

	require.Contains(t, a.AuthorStats, "Alice")
	alice := a.AuthorStats["Alice"]
	assert.Equal(t, 3, alice.TotalCommits)
	assert.Equal(t, 220.0, alice.AverageLinesPerCommit)
	assert.Equal(t, 600, alice.LargestCommit)
	assert.Equal(t, now.AddDate(0, 0, -1), alice.LastCommitDate)
	assert.Equal(t, map[detail.SizeBucket]int{detail.SizeSmall: 1, detail.SizeMedium: 1, detail.SizeHuge: 1}, alice.CommitSizeDistribution)
	assert.Equal(t, map[detail.Category]int{detail.CategoryBugFix: 1, detail.CategoryTest: 1, detail.CategoryFeature: 1}, alice.CommitCategoryDistribution)

	bob := a.AuthorStats["Bob"]
	assert.Equal(t, 1, bob.TotalCommits)
	assert.Equal(t, map[detail.SizeBucket]int{detail.SizeSmall: 1}, bob.CommitSizeDistribution)

	q := a.QualityMetrics
	assert.Equal(t, 1, q.CommitsWithTests)
	assert.Equal(t, 2, q.CommitsWithDocumentation, "Bob's docs commit and Alice's .md commit")
	assert.Equal(t, 1, q.BugFixCommits)
	assert.Equal(t, 1, q.FeatureCommits)
	assert.Equal(t, 0, q.RefactoringCommits)
	assert.Equal(t, 2, q.SingleFileCommits)
	assert.Equal(t, 2, q.MultiFileCommits)
	assert.Equal(t, 2.25, q.AverageFilesPerCommit)

	assert.Equal(t, []Count{{".cs", 3}, {".md", 1}, {".spec", 1}, {".txt", 1}}, a.FileTypeDistribution)

	require.Len(t, a.TopCommitsBySize, 4)
	assert.Equal(t, "a3", a.TopCommitsBySize[0].CommitID)
	assert.Equal(t, "b1", a.TopCommitsBySize[3].CommitID)
	assert.Equal(t, "b1", a.RecentCommits[0].CommitID)
	assert.Equal(t, "a1", a.RecentCommits[3].CommitID)
}

func TestAnalyze_Limits(t *testing.T) {
	var commits []detail.DetailedCommit
	for i := 0; i < 30; i++ {
		commits = append(commits, detailed(fmt.Sprintf("c%02d", i), "Alice", i, 0, now.Add(time.Duration(i)*time.Hour), detail.CategoryOther, 1))
	}

	a := Analyze(commits, IdentityName, now)
	require.Len(t, a.TopCommitsBySize, 10)
	require.Len(t, a.RecentCommits, 20)
	assert.Equal(t, "c29", a.TopCommitsBySize[0].CommitID)
	assert.Equal(t, "c29", a.RecentCommits[0].CommitID)
	assert.Equal(t, "c10", a.RecentCommits[19].CommitID)

	// Input order is left untouched
	assert.Equal(t, "c00", commits[0].CommitID)
}

func TestAnalyze_Empty(t *testing.T) {
	a := Analyze(nil, IdentityName, now)
	assert.Zero(t, a.TotalCommits)
	assert.Equal(t, SizeMetrics{}, a.SizeMetrics)
	assert.Equal(t, QualityMetrics{}, a.QualityMetrics)
	assert.Empty(t, a.AuthorStats)
	assert.NotNil(t, a.TopCommitsBySize)
	assert.NotNil(t, a.FileTypeDistribution)
	assert.Equal(t, now, a.AnalysisDate)
}

func TestAnalyze_IdentityNameEmailSplitsNamesakes(t *testing.T) {
	one := detailed("1", "Sam", 1, 0, now, detail.CategoryOther, 1)
	two := detailed("2", "Sam", 1, 0, now, detail.CategoryOther, 1)
	two.AuthorEmail = "other@example.com"

	assert.Len(t, Analyze([]detail.DetailedCommit{one, two}, IdentityName, now).AuthorStats, 1)
	assert.Len(t, Analyze([]detail.DetailedCommit{one, two}, IdentityNameEmail, now).AuthorStats, 2)
}
