package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/analysis"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/graph"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/ranking"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/stats"
)

// maxRows caps long breakdowns in table output
const maxRows = 20

// TableFormatter prints results as terminal tables. Now anchors relative
// dates such as "3 days ago".
type TableFormatter struct {
	Now func() time.Time
}

// Format implements Formatter. Types without a table layout fall back to JSON.
func (f *TableFormatter) Format(result any, w io.Writer) error {
	var sections []string
	switch r := result.(type) {
	case analysis.CommitMetrics:
		sections = f.commitMetrics(r)
	case []ranking.DeveloperRanking:
		sections = f.ranking(r)
	case graph.CodeGraphData:
		sections = f.codeGraph(r)
	case stats.GeneralStats:
		sections = f.generalStats(r)
	case analysis.CommitAnalysis:
		sections = f.commitAnalysis(r)
	default:
		return (&JSONFormatter{}).Format(result, w)
	}

	_, err := fmt.Fprintln(w, strings.Join(sections, "\n\n"))
	return err
}

func newTable(title string, header table.Row) table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(title)
	if header != nil {
		tbl.AppendHeader(header)
	}
	return tbl
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

func (f *TableFormatter) since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, f.Now(), "ago", "from now")
}

func countsTable(title string, counts []analysis.Count) string {
	tbl := newTable(title, table.Row{"", "Commits"})
	for i, c := range counts {
		if i == maxRows {
			tbl.AppendRow(table.Row{fmt.Sprintf("+%d more", len(counts)-maxRows), ""})
			break
		}
		tbl.AppendRow(table.Row{c.Key, count(c.Count)})
	}
	return tbl.Render()
}

func (f *TableFormatter) commitMetrics(m analysis.CommitMetrics) []string {
	return []string{
		fmt.Sprintf("Total commits: %s", count(m.TotalCommits)),
		countsTable("By author", m.CommitsByAuthor),
		countsTable("By date", m.CommitsByDate),
		countsTable("By project", m.CommitsByProject),
		countsTable("By repository", m.CommitsByRepository),
	}
}

func (f *TableFormatter) ranking(rankings []ranking.DeveloperRanking) []string {
	tbl := newTable("Developer ranking", table.Row{"#", "Developer", "Commits", "Score", "Last commit", "Projects", "Repositories"})
	for i, r := range rankings {
		tbl.AppendRow(table.Row{
			i + 1,
			r.DeveloperName,
			count(r.CommitCount),
			fmt.Sprintf("%.2f", r.Score),
			f.since(r.LastCommitDate),
			r.ProjectsContributed,
			r.RepositoriesContributed,
		})
	}
	if len(rankings) == 0 {
		return []string{"No commits in the selected window"}
	}
	return []string{tbl.Render()}
}

func (f *TableFormatter) codeGraph(data graph.CodeGraphData) []string {
	var files, authors int
	for _, n := range data.Nodes {
		if n.Type == graph.NodeFile {
			files++
		} else {
			authors++
		}
	}
	summary := fmt.Sprintf("Nodes: %d (%d files, %d authors) | Links: %d", len(data.Nodes), files, authors, len(data.Links))
	if len(data.Links) == 0 {
		return []string{summary}
	}

	links := append([]graph.GraphLink(nil), data.Links...)
	sort.SliceStable(links, func(i, j int) bool { return links[i].Weight > links[j].Weight })

	tbl := newTable("Strongest links", table.Row{"Author", "File", "Commits", "Project"})
	for i, l := range links {
		if i == maxRows {
			break
		}
		tbl.AppendRow(table.Row{l.Source, l.Target, l.Weight, l.ProjectName})
	}
	return []string{summary, tbl.Render()}
}

func (f *TableFormatter) generalStats(s stats.GeneralStats) []string {
	tbl := newTable(fmt.Sprintf("General statistics, last %d days", s.DaysAnalyzed), table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Builds", fmt.Sprintf("%s (%s succeeded)", count(s.TotalBuilds), count(s.SuccessfulBuilds))},
		{"Build success rate", s.BuildSuccessRateText()},
		{"Average build duration", s.AverageBuildDurationText()},
		{"Pull requests", fmt.Sprintf("%s (%s merged)", count(s.TotalPullRequests), count(s.MergedPullRequests))},
		{"PR merge rate", s.PRMergeRateText()},
		{"Average PR time", s.AveragePRTimeText()},
		{"Work items", fmt.Sprintf("%s (%s completed)", count(s.TotalWorkItems), count(s.CompletedWorkItems))},
		{"Work item completion", s.WorkItemCompletionRateText()},
		{"Repositories", fmt.Sprintf("%s (%s active)", count(s.TotalRepositories), count(s.ActiveRepositories))},
		{"Code coverage", s.CodeCoverageText()},
		{"Commits per day", fmt.Sprintf("%.2f", s.CommitsPerDay)},
		{"Active developers", count(s.ActiveDevelopers)},
		{"Updated", f.since(s.LastUpdated)},
	})
	return []string{tbl.Render()}
}

func (f *TableFormatter) commitAnalysis(a analysis.CommitAnalysis) []string {
	if a.TotalCommits == 0 {
		return []string{"No commits could be analyzed"}
	}

	size := a.SizeMetrics
	summary := newTable(fmt.Sprintf("Commit analysis, %s commits", count(a.TotalCommits)), table.Row{"Metric", "Value"})
	summary.AppendRows([]table.Row{
		{"Lines added", count(size.TotalLinesAdded)},
		{"Lines deleted", count(size.TotalLinesDeleted)},
		{"Net lines", count(size.NetLinesChanged)},
		{"Average lines per commit", fmt.Sprintf("%.2f", size.AverageLinesPerCommit)},
		{"Largest / smallest commit", fmt.Sprintf("%s / %s", count(size.LargestCommitSize), count(size.SmallestCommitSize))},
		{"Small / medium / large / huge", fmt.Sprintf("%d / %d / %d / %d", size.CommitsSmall, size.CommitsMedium, size.CommitsLarge, size.CommitsHuge)},
		{"Commits with tests", a.QualityMetrics.CommitsWithTests},
		{"Commits with documentation", a.QualityMetrics.CommitsWithDocumentation},
		{"Bug fixes / features / refactorings", fmt.Sprintf("%d / %d / %d",
			a.QualityMetrics.BugFixCommits, a.QualityMetrics.FeatureCommits, a.QualityMetrics.RefactoringCommits)},
		{"Average files per commit", fmt.Sprintf("%.2f", a.QualityMetrics.AverageFilesPerCommit)},
	})

	keys := make([]string, 0, len(a.AuthorStats))
	for k := range a.AuthorStats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := a.AuthorStats[keys[i]].TotalCommits, a.AuthorStats[keys[j]].TotalCommits
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})

	authors := newTable("Authors", table.Row{"Author", "Commits", "Added", "Deleted", "Avg lines", "Largest", "Last commit"})
	for _, k := range keys {
		s := a.AuthorStats[k]
		authors.AppendRow(table.Row{
			k,
			s.TotalCommits,
			count(s.TotalLinesAdded),
			count(s.TotalLinesDeleted),
			fmt.Sprintf("%.2f", s.AverageLinesPerCommit),
			count(s.LargestCommit),
			f.since(s.LastCommitDate),
		})
	}

	top := newTable("Largest commits", table.Row{"Commit", "Author", "Changes", "Size", "Category"})
	for _, c := range a.TopCommitsBySize {
		top.AppendRow(table.Row{shortID(c.CommitID), c.Author, count(c.TotalChanges), c.Size, c.Category})
	}

	return []string{
		summary.Render(),
		authors.Render(),
		top.Render(),
		countsTable("File types", a.FileTypeDistribution),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
