package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/logging"
)

// Sampling bounds. Organization-wide queries never exhaustively crawl.
const (
	DefaultCrawlMaxProjects     = 20
	DefaultStatsMaxProjects     = 10
	DefaultCoverageMaxProjects  = 5
	DefaultPRReposPerProject    = 5
	DefaultActivityMaxRepos     = 20
	DefaultMaxDetailCommits     = 100
	DefaultPageSize             = 100
	DefaultWorkItemBatchSize    = 200
	DefaultCoverageBuilds       = 10
	DefaultCoverageBuildsProbed = 5
)

// Config holds all configuration settings
type Config struct {
	// Default organization used when a command omits --org
	Organization string `mapstructure:"organization" yaml:"organization"`

	// Access token (PAT). Never written back by Save.
	Token string `mapstructure:"token" yaml:"-"`

	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream"`
	Crawl    CrawlConfig    `mapstructure:"crawl" yaml:"crawl"`
	Stats    StatsConfig    `mapstructure:"stats" yaml:"stats"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Logging  logging.Config `mapstructure:"logging" yaml:"logging"`
}

// UpstreamConfig controls HTTP access to the DevOps REST API
type UpstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
}

// CrawlConfig bounds the commit crawl and the per-commit detail resolution
type CrawlConfig struct {
	MaxProjects         int           `mapstructure:"max_projects" yaml:"max_projects"`
	PageSize            int           `mapstructure:"page_size" yaml:"page_size"`
	PageDelay           time.Duration `mapstructure:"page_delay" yaml:"page_delay"`
	ProjectDelay        time.Duration `mapstructure:"project_delay" yaml:"project_delay"`
	MaxDetailCommits    int           `mapstructure:"max_detail_commits" yaml:"max_detail_commits"`
	DetailDelay         time.Duration `mapstructure:"detail_delay" yaml:"detail_delay"`
	ProgressEvery       int           `mapstructure:"progress_every" yaml:"progress_every"`
	DefaultWindowMonths int           `mapstructure:"default_window_months" yaml:"default_window_months"`
}

// StatsConfig bounds the composite statistics sub-queries
type StatsConfig struct {
	MaxProjects          int           `mapstructure:"max_projects" yaml:"max_projects"`
	MaxCoverageProjects  int           `mapstructure:"max_coverage_projects" yaml:"max_coverage_projects"`
	PRReposPerProject    int           `mapstructure:"pr_repos_per_project" yaml:"pr_repos_per_project"`
	MaxActivityRepos     int           `mapstructure:"max_activity_repos" yaml:"max_activity_repos"`
	ActivityWindowDays   int           `mapstructure:"activity_window_days" yaml:"activity_window_days"`
	WorkItemBatchSize    int           `mapstructure:"work_item_batch_size" yaml:"work_item_batch_size"`
	CoverageBuilds       int           `mapstructure:"coverage_builds" yaml:"coverage_builds"`
	CoverageBuildsProbed int           `mapstructure:"coverage_builds_probed" yaml:"coverage_builds_probed"`
	DefaultDays          int           `mapstructure:"default_days" yaml:"default_days"`
	ProjectDelay         time.Duration `mapstructure:"project_delay" yaml:"project_delay"`
	RepoDelay            time.Duration `mapstructure:"repo_delay" yaml:"repo_delay"`
	ProbeDelay           time.Duration `mapstructure:"probe_delay" yaml:"probe_delay"`
}

// CacheConfig controls the in-memory result cache
type CacheConfig struct {
	Capacity         int           `mapstructure:"capacity" yaml:"capacity"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	CommitMetricsTTL time.Duration `mapstructure:"commit_metrics_ttl" yaml:"commit_metrics_ttl"`
	RankingTTL       time.Duration `mapstructure:"ranking_ttl" yaml:"ranking_ttl"`
	GraphTTL         time.Duration `mapstructure:"graph_ttl" yaml:"graph_ttl"`
	AnalysisTTL      time.Duration `mapstructure:"analysis_ttl" yaml:"analysis_ttl"`
	StatsTTL         time.Duration `mapstructure:"stats_ttl" yaml:"stats_ttl"`
	WindowTTL        time.Duration `mapstructure:"window_ttl" yaml:"window_ttl"`
}

// AnalysisConfig controls how commits are attributed to authors
type AnalysisConfig struct {
	// "name" merges authors sharing a display name; "name_email" keeps them apart
	AuthorIdentity string `mapstructure:"author_identity" yaml:"author_identity"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:           "https://dev.azure.com",
			Timeout:           60 * time.Second,
			UserAgent:         "AzureDevOps-Gamification/1.0",
			RequestsPerSecond: 20,
			Burst:             5,
			MaxRetries:        3,
			RetryBaseDelay:    500 * time.Millisecond,
		},
		Crawl: CrawlConfig{
			MaxProjects:         DefaultCrawlMaxProjects,
			PageSize:            DefaultPageSize,
			PageDelay:           100 * time.Millisecond,
			ProjectDelay:        200 * time.Millisecond,
			MaxDetailCommits:    DefaultMaxDetailCommits,
			DetailDelay:         150 * time.Millisecond,
			ProgressEvery:       20,
			DefaultWindowMonths: 12,
		},
		Stats: StatsConfig{
			MaxProjects:          DefaultStatsMaxProjects,
			MaxCoverageProjects:  DefaultCoverageMaxProjects,
			PRReposPerProject:    DefaultPRReposPerProject,
			MaxActivityRepos:     DefaultActivityMaxRepos,
			ActivityWindowDays:   30,
			WorkItemBatchSize:    DefaultWorkItemBatchSize,
			CoverageBuilds:       DefaultCoverageBuilds,
			CoverageBuildsProbed: DefaultCoverageBuildsProbed,
			DefaultDays:          30,
			ProjectDelay:         100 * time.Millisecond,
			RepoDelay:            100 * time.Millisecond,
			ProbeDelay:           50 * time.Millisecond,
		},
		Cache: CacheConfig{
			Capacity:         100,
			CleanupInterval:  time.Minute,
			CommitMetricsTTL: 5 * time.Minute,
			RankingTTL:       5 * time.Minute,
			GraphTTL:         10 * time.Minute,
			AnalysisTTL:      10 * time.Minute,
			StatsTTL:         15 * time.Minute,
			WindowTTL:        5 * time.Minute,
		},
		Analysis: AnalysisConfig{
			AuthorIdentity: "name",
		},
		Logging: logging.Config{
			Level: "info",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	// GAMIFY_UPSTREAM_BASE_URL, GAMIFY_CACHE_STATS_TTL, ...
	v.SetEnvPrefix("GAMIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".gamify")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".gamify"))
	}

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("organization", cfg.Organization)
	v.SetDefault("token", cfg.Token)

	v.SetDefault("upstream.base_url", cfg.Upstream.BaseURL)
	v.SetDefault("upstream.timeout", cfg.Upstream.Timeout)
	v.SetDefault("upstream.user_agent", cfg.Upstream.UserAgent)
	v.SetDefault("upstream.requests_per_second", cfg.Upstream.RequestsPerSecond)
	v.SetDefault("upstream.burst", cfg.Upstream.Burst)
	v.SetDefault("upstream.max_retries", cfg.Upstream.MaxRetries)
	v.SetDefault("upstream.retry_base_delay", cfg.Upstream.RetryBaseDelay)

	v.SetDefault("crawl.max_projects", cfg.Crawl.MaxProjects)
	v.SetDefault("crawl.page_size", cfg.Crawl.PageSize)
	v.SetDefault("crawl.page_delay", cfg.Crawl.PageDelay)
	v.SetDefault("crawl.project_delay", cfg.Crawl.ProjectDelay)
	v.SetDefault("crawl.max_detail_commits", cfg.Crawl.MaxDetailCommits)
	v.SetDefault("crawl.detail_delay", cfg.Crawl.DetailDelay)
	v.SetDefault("crawl.progress_every", cfg.Crawl.ProgressEvery)
	v.SetDefault("crawl.default_window_months", cfg.Crawl.DefaultWindowMonths)

	v.SetDefault("stats.max_projects", cfg.Stats.MaxProjects)
	v.SetDefault("stats.max_coverage_projects", cfg.Stats.MaxCoverageProjects)
	v.SetDefault("stats.pr_repos_per_project", cfg.Stats.PRReposPerProject)
	v.SetDefault("stats.max_activity_repos", cfg.Stats.MaxActivityRepos)
	v.SetDefault("stats.activity_window_days", cfg.Stats.ActivityWindowDays)
	v.SetDefault("stats.work_item_batch_size", cfg.Stats.WorkItemBatchSize)
	v.SetDefault("stats.coverage_builds", cfg.Stats.CoverageBuilds)
	v.SetDefault("stats.coverage_builds_probed", cfg.Stats.CoverageBuildsProbed)
	v.SetDefault("stats.default_days", cfg.Stats.DefaultDays)
	v.SetDefault("stats.project_delay", cfg.Stats.ProjectDelay)
	v.SetDefault("stats.repo_delay", cfg.Stats.RepoDelay)
	v.SetDefault("stats.probe_delay", cfg.Stats.ProbeDelay)

	v.SetDefault("cache.capacity", cfg.Cache.Capacity)
	v.SetDefault("cache.cleanup_interval", cfg.Cache.CleanupInterval)
	v.SetDefault("cache.commit_metrics_ttl", cfg.Cache.CommitMetricsTTL)
	v.SetDefault("cache.ranking_ttl", cfg.Cache.RankingTTL)
	v.SetDefault("cache.graph_ttl", cfg.Cache.GraphTTL)
	v.SetDefault("cache.analysis_ttl", cfg.Cache.AnalysisTTL)
	v.SetDefault("cache.stats_ttl", cfg.Cache.StatsTTL)
	v.SetDefault("cache.window_ttl", cfg.Cache.WindowTTL)

	v.SetDefault("analysis.author_identity", cfg.Analysis.AuthorIdentity)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.json", cfg.Logging.JSONFormat)
	v.SetDefault("logging.output_file", cfg.Logging.OutputFile)
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",       // Main environment file
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			// godotenv.Load never overrides variables that are already set
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".gamify", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the platform's conventional variable names on top of GAMIFY_*
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("AZURE_DEVOPS_PAT"); token != "" {
		cfg.Token = token
	}
	if org := os.Getenv("AZURE_DEVOPS_ORG"); org != "" {
		cfg.Organization = org
	}
	if url := os.Getenv("AZURE_DEVOPS_BASE_URL"); url != "" {
		cfg.Upstream.BaseURL = strings.TrimRight(url, "/")
	}
	if rps := os.Getenv("AZURE_DEVOPS_RATE_LIMIT"); rps != "" {
		if rate, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.Upstream.RequestsPerSecond = rate
		}
	}
	if path := cfg.Logging.OutputFile; path != "" {
		cfg.Logging.OutputFile = expandPath(path)
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("organization", c.Organization)
	v.Set("upstream", c.Upstream)
	v.Set("crawl", c.Crawl)
	v.Set("stats", c.Stats)
	v.Set("cache", c.Cache)
	v.Set("analysis", c.Analysis)
	v.Set("logging", c.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
