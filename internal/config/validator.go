package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// AsError converts a failed result into a config error, nil when valid
func (vr *ValidationResult) AsError() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigError(strings.TrimSpace(vr.Error()))
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateUpstream(result)
	c.validateBounds(result)
	c.validateCache(result)

	switch c.Analysis.AuthorIdentity {
	case "", "name", "name_email":
	default:
		result.AddError("analysis.author_identity must be \"name\" or \"name_email\", got %q", c.Analysis.AuthorIdentity)
	}

	return result
}

func (c *Config) validateUpstream(result *ValidationResult) {
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError("upstream.base_url is not a valid URL: %q", c.Upstream.BaseURL)
	} else if u.Scheme != "https" {
		result.AddWarning("upstream.base_url uses %s; the access token is sent in plaintext", u.Scheme)
	}

	if c.Upstream.RequestsPerSecond <= 0 {
		result.AddError("upstream.requests_per_second must be positive")
	}
	if c.Upstream.Burst < 1 {
		result.AddError("upstream.burst must be at least 1")
	}
	if c.Upstream.MaxRetries < 0 {
		result.AddError("upstream.max_retries cannot be negative")
	}
	if c.Upstream.Timeout <= 0 {
		result.AddWarning("upstream.timeout is unset; requests rely on context deadlines only")
	}
}

func (c *Config) validateBounds(result *ValidationResult) {
	positive := map[string]int{
		"crawl.max_projects":          c.Crawl.MaxProjects,
		"crawl.page_size":             c.Crawl.PageSize,
		"crawl.max_detail_commits":    c.Crawl.MaxDetailCommits,
		"crawl.default_window_months": c.Crawl.DefaultWindowMonths,
		"stats.max_projects":          c.Stats.MaxProjects,
		"stats.max_coverage_projects": c.Stats.MaxCoverageProjects,
		"stats.work_item_batch_size":  c.Stats.WorkItemBatchSize,
		"stats.default_days":          c.Stats.DefaultDays,
	}
	for key, value := range positive {
		if value <= 0 {
			result.AddError("%s must be positive, got %d", key, value)
		}
	}

	if c.Crawl.PageDelay < 0 || c.Crawl.ProjectDelay < 0 || c.Crawl.DetailDelay < 0 {
		result.AddError("crawl delays cannot be negative")
	}
}

func (c *Config) validateCache(result *ValidationResult) {
	if c.Cache.Capacity <= 0 {
		result.AddError("cache.capacity must be positive")
	}

	ttls := map[string]int64{
		"cache.commit_metrics_ttl": int64(c.Cache.CommitMetricsTTL),
		"cache.ranking_ttl":        int64(c.Cache.RankingTTL),
		"cache.graph_ttl":          int64(c.Cache.GraphTTL),
		"cache.analysis_ttl":       int64(c.Cache.AnalysisTTL),
		"cache.stats_ttl":          int64(c.Cache.StatsTTL),
		"cache.window_ttl":         int64(c.Cache.WindowTTL),
	}
	for key, ttl := range ttls {
		if ttl <= 0 {
			result.AddError("%s must be positive", key)
		}
	}
}
