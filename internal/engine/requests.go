package engine

import (
	"regexp"
	"strings"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
)

// MetricsRequest selects the commits counted by CommitMetrics. Year and Month
// pick one calendar month when both are set; otherwise the default window
// ending now is used.
type MetricsRequest struct {
	Organization string
	Project      string
	Year         *int
	Month        *int
	Author       string
	Token        string
}

// RankingRequest selects the commits ranked by DeveloperRanking
type RankingRequest struct {
	Organization string
	Project      string
	Year         *int
	Month        *int
	Token        string
}

// GraphRequest selects the repository whose current-month commits form the
// collaboration graph
type GraphRequest struct {
	Organization string
	Project      string
	RepositoryID string
	Token        string
}

// StatsRequest selects the GeneralStats window. Zero Days uses the
// configured default.
type StatsRequest struct {
	Organization string
	Project      string
	Days         int
	Token        string
}

// AnalysisRequest selects the commits detailed by CommitAnalysis
type AnalysisRequest struct {
	Organization string
	Project      string
	Year         *int
	Month        *int
	Author       string
	RepositoryID string
	Token        string
}

var organizationName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// validateScope rejects a request before any upstream call is made
func validateScope(organization, token string) error {
	if strings.TrimSpace(organization) == "" {
		return errors.ValidationError("organization is required")
	}
	if !organizationName.MatchString(organization) {
		return errors.ValidationErrorf("invalid organization name %q: use letters, digits, '-' or '_' (at most 50)", organization)
	}
	if strings.TrimSpace(token) == "" {
		return errors.ValidationError("access token is required")
	}
	return nil
}
