package detail

import (
	"path"
	"strings"
)

// Category is the inferred intent of a commit
type Category string

const (
	CategoryBugFix        Category = "BugFix"
	CategoryTest          Category = "Test"
	CategoryRefactoring   Category = "Refactoring"
	CategoryDocumentation Category = "Documentation"
	CategoryConfiguration Category = "Configuration"
	CategoryFeature       Category = "Feature"
	CategoryOther         Category = "Other"
)

// SizeBucket groups commits by total changed lines
type SizeBucket string

const (
	SizeSmall  SizeBucket = "Small"
	SizeMedium SizeBucket = "Medium"
	SizeLarge  SizeBucket = "Large"
	SizeHuge   SizeBucket = "Huge"
)

// SizeBuckets lists the buckets from smallest to largest
var SizeBuckets = []SizeBucket{SizeSmall, SizeMedium, SizeLarge, SizeHuge}

type categoryRule struct {
	category Category
	keywords []string
}

// Evaluated in order; the first rule with a matching keyword wins
var categoryRules = []categoryRule{
	{CategoryBugFix, []string{"fix", "bug", "error"}},
	{CategoryTest, []string{"test", "spec"}},
	{CategoryRefactoring, []string{"refactor", "cleanup", "improve"}},
	{CategoryDocumentation, []string{"doc", "readme", "comment"}},
	{CategoryConfiguration, []string{"config", "setting", ".config"}},
	{CategoryFeature, []string{"feat", "add", "implement"}},
}

// CategorizeCommit classifies a commit message by keyword
func CategorizeCommit(message string) Category {
	lower := strings.ToLower(message)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// CategorizeSize buckets a commit by total changed lines. Boundaries belong
// to the larger bucket.
func CategorizeSize(totalChanges int) SizeBucket {
	switch {
	case totalChanges < 10:
		return SizeSmall
	case totalChanges < 100:
		return SizeMedium
	case totalChanges < 500:
		return SizeLarge
	default:
		return SizeHuge
	}
}

// Estimated line counts per extension when the diff is unavailable
var sizeEstimates = map[string]int{
	".cs": 50, ".java": 50, ".py": 50, ".js": 50, ".ts": 50, ".go": 50,
	".html": 30, ".xml": 30, ".json": 30,
	".css": 25, ".scss": 25,
	".md": 20, ".txt": 20,
	".config": 15, ".yml": 15, ".yaml": 15,
}

const defaultSizeEstimate = 10

// EstimateFileSize guesses the line count of a whole file from its extension
func EstimateFileSize(filePath string) int {
	if n, ok := sizeEstimates[Extension(filePath)]; ok {
		return n
	}
	return defaultSizeEstimate
}

// Extension returns the lowercased extension of a repository path
func Extension(filePath string) string {
	return strings.ToLower(path.Ext(filePath))
}
