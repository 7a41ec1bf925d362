package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/detail"
)

const (
	topBySizeLimit = 10
	recentLimit    = 20
)

// SizeMetrics summarizes changed lines over a commit set
type SizeMetrics struct {
	TotalLinesAdded       int     `json:"totalLinesAdded" yaml:"totalLinesAdded"`
	TotalLinesDeleted     int     `json:"totalLinesDeleted" yaml:"totalLinesDeleted"`
	NetLinesChanged       int     `json:"netLinesChanged" yaml:"netLinesChanged"`
	AverageLinesPerCommit float64 `json:"averageLinesPerCommit" yaml:"averageLinesPerCommit"`
	LargestCommitSize     int     `json:"largestCommitSize" yaml:"largestCommitSize"`
	SmallestCommitSize    int     `json:"smallestCommitSize" yaml:"smallestCommitSize"`
	CommitsSmall          int     `json:"commitsSmall" yaml:"commitsSmall"`
	CommitsMedium         int     `json:"commitsMedium" yaml:"commitsMedium"`
	CommitsLarge          int     `json:"commitsLarge" yaml:"commitsLarge"`
	CommitsHuge           int     `json:"commitsHuge" yaml:"commitsHuge"`
}

// QualityMetrics counts commits by intent and breadth
type QualityMetrics struct {
	CommitsWithTests         int     `json:"commitsWithTests" yaml:"commitsWithTests"`
	CommitsWithDocumentation int     `json:"commitsWithDocumentation" yaml:"commitsWithDocumentation"`
	RefactoringCommits       int     `json:"refactoringCommits" yaml:"refactoringCommits"`
	BugFixCommits            int     `json:"bugFixCommits" yaml:"bugFixCommits"`
	FeatureCommits           int     `json:"featureCommits" yaml:"featureCommits"`
	AverageFilesPerCommit    float64 `json:"averageFilesPerCommit" yaml:"averageFilesPerCommit"`
	SingleFileCommits        int     `json:"singleFileCommits" yaml:"singleFileCommits"`
	MultiFileCommits         int     `json:"multiFileCommits" yaml:"multiFileCommits"`
}

// AuthorStats aggregates the detailed commits of one author
type AuthorStats struct {
	AuthorName                 string                    `json:"authorName" yaml:"authorName"`
	AuthorEmail                string                    `json:"authorEmail" yaml:"authorEmail"`
	TotalCommits               int                       `json:"totalCommits" yaml:"totalCommits"`
	TotalLinesAdded            int                       `json:"totalLinesAdded" yaml:"totalLinesAdded"`
	TotalLinesDeleted          int                       `json:"totalLinesDeleted" yaml:"totalLinesDeleted"`
	AverageLinesPerCommit      float64                   `json:"averageLinesPerCommit" yaml:"averageLinesPerCommit"`
	LargestCommit              int                       `json:"largestCommit" yaml:"largestCommit"`
	LastCommitDate             time.Time                 `json:"lastCommitDate" yaml:"lastCommitDate"`
	CommitSizeDistribution     map[detail.SizeBucket]int `json:"commitSizeDistribution" yaml:"commitSizeDistribution"`
	CommitCategoryDistribution map[detail.Category]int   `json:"commitCategoryDistribution" yaml:"commitCategoryDistribution"`
}

// CommitAnalysis is the detailed report over resolved commits
type CommitAnalysis struct {
	TotalCommits         int                     `json:"totalCommits" yaml:"totalCommits"`
	SizeMetrics          SizeMetrics             `json:"sizeMetrics" yaml:"sizeMetrics"`
	TopCommitsBySize     []detail.DetailedCommit `json:"topCommitsBySize" yaml:"topCommitsBySize"`
	RecentCommits        []detail.DetailedCommit `json:"recentCommits" yaml:"recentCommits"`
	QualityMetrics       QualityMetrics          `json:"qualityMetrics" yaml:"qualityMetrics"`
	AuthorStats          map[string]AuthorStats  `json:"authorStats" yaml:"authorStats"`
	FileTypeDistribution []Count                 `json:"fileTypeDistribution" yaml:"fileTypeDistribution"`
	AnalysisDate         time.Time               `json:"analysisDate" yaml:"analysisDate"`
}

// EmptyAnalysis is the report returned when nothing could be analyzed
func EmptyAnalysis(now time.Time) CommitAnalysis {
	return CommitAnalysis{
		TopCommitsBySize:     []detail.DetailedCommit{},
		RecentCommits:        []detail.DetailedCommit{},
		AuthorStats:          map[string]AuthorStats{},
		FileTypeDistribution: []Count{},
		AnalysisDate:         now.UTC(),
	}
}

// Analyze computes the detailed report. An empty input yields zero metrics.
func Analyze(commits []detail.DetailedCommit, identity Identity, now time.Time) CommitAnalysis {
	report := EmptyAnalysis(now)
	if len(commits) == 0 {
		return report
	}

	report.TotalCommits = len(commits)
	report.SizeMetrics = sizeMetrics(commits)
	report.QualityMetrics = qualityMetrics(commits)
	report.AuthorStats = authorStats(commits, identity)
	report.FileTypeDistribution = fileTypeDistribution(commits)
	report.TopCommitsBySize = topBy(commits, topBySizeLimit, func(a, b detail.DetailedCommit) bool {
		return a.TotalChanges > b.TotalChanges
	})
	report.RecentCommits = topBy(commits, recentLimit, func(a, b detail.DetailedCommit) bool {
		return a.Date.After(b.Date)
	})
	return report
}

func sizeMetrics(commits []detail.DetailedCommit) SizeMetrics {
	m := SizeMetrics{
		LargestCommitSize:  commits[0].TotalChanges,
		SmallestCommitSize: commits[0].TotalChanges,
	}

	var total int
	for _, c := range commits {
		m.TotalLinesAdded += c.LinesAdded
		m.TotalLinesDeleted += c.LinesDeleted
		total += c.TotalChanges
		m.LargestCommitSize = max(m.LargestCommitSize, c.TotalChanges)
		m.SmallestCommitSize = min(m.SmallestCommitSize, c.TotalChanges)

		switch c.Size {
		case detail.SizeSmall:
			m.CommitsSmall++
		case detail.SizeMedium:
			m.CommitsMedium++
		case detail.SizeLarge:
			m.CommitsLarge++
		case detail.SizeHuge:
			m.CommitsHuge++
		}
	}

	m.NetLinesChanged = m.TotalLinesAdded - m.TotalLinesDeleted
	m.AverageLinesPerCommit = Round2(float64(total) / float64(len(commits)))
	return m
}

func qualityMetrics(commits []detail.DetailedCommit) QualityMetrics {
	var q QualityMetrics
	var files int

	for _, c := range commits {
		if c.Category == detail.CategoryTest || anyFileType(c.FileTypes, isTestType) {
			q.CommitsWithTests++
		}
		if c.Category == detail.CategoryDocumentation || anyFileType(c.FileTypes, isDocType) {
			q.CommitsWithDocumentation++
		}

		switch c.Category {
		case detail.CategoryRefactoring:
			q.RefactoringCommits++
		case detail.CategoryBugFix:
			q.BugFixCommits++
		case detail.CategoryFeature:
			q.FeatureCommits++
		}

		switch {
		case c.FilesChanged == 1:
			q.SingleFileCommits++
		case c.FilesChanged > 1:
			q.MultiFileCommits++
		}
		files += c.FilesChanged
	}

	q.AverageFilesPerCommit = Round2(float64(files) / float64(len(commits)))
	return q
}

func isTestType(ext string) bool {
	return strings.Contains(ext, "test") || strings.Contains(ext, "spec")
}

func isDocType(ext string) bool {
	return ext == ".md" || ext == ".txt"
}

func anyFileType(types []string, match func(string) bool) bool {
	for _, t := range types {
		if match(t) {
			return true
		}
	}
	return false
}

func authorStats(commits []detail.DetailedCommit, identity Identity) map[string]AuthorStats {
	stats := make(map[string]*AuthorStats)
	changes := make(map[string]int)

	for _, c := range commits {
		key := identity.Key(c.Author, c.AuthorEmail)
		s, ok := stats[key]
		if !ok {
			s = &AuthorStats{
				AuthorName:                 orUnknown(c.Author),
				AuthorEmail:                c.AuthorEmail,
				LargestCommit:              c.TotalChanges,
				LastCommitDate:             c.Date,
				CommitSizeDistribution:     map[detail.SizeBucket]int{},
				CommitCategoryDistribution: map[detail.Category]int{},
			}
			stats[key] = s
		}

		s.TotalCommits++
		s.TotalLinesAdded += c.LinesAdded
		s.TotalLinesDeleted += c.LinesDeleted
		changes[key] += c.TotalChanges
		s.LargestCommit = max(s.LargestCommit, c.TotalChanges)
		if c.Date.After(s.LastCommitDate) {
			s.LastCommitDate = c.Date
		}
		s.CommitSizeDistribution[c.Size]++
		s.CommitCategoryDistribution[c.Category]++
	}

	out := make(map[string]AuthorStats, len(stats))
	for key, s := range stats {
		s.AverageLinesPerCommit = Round2(float64(changes[key]) / float64(s.TotalCommits))
		out[key] = *s
	}
	return out
}

func fileTypeDistribution(commits []detail.DetailedCommit) []Count {
	types := newCounter()
	for _, c := range commits {
		for _, ext := range c.FileTypes {
			types.add(ext)
		}
	}
	return types.sorted()
}

// topBy returns the first n commits under less, keeping input order for ties
func topBy(commits []detail.DetailedCommit, n int, less func(a, b detail.DetailedCommit) bool) []detail.DetailedCommit {
	sorted := append([]detail.DetailedCommit(nil), commits...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
