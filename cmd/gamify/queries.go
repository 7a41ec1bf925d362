package main

import (
	"github.com/spf13/cobra"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/engine"
)

var repositoryFlag string

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build the author/file collaboration graph of the current month",
	Long: `Links every author to the files they modified this month. With
--repository only that repository's commits are used; an unknown id falls
back to the first repository of the scope.`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detailed commit analysis: sizes, categories and per-author stats",
	Long: `Resolves the changed lines of each commit in the window (bounded by
crawl.max_detail_commits) and reports size buckets, commit categories, file
types and per-author totals.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

var daysFlag int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Build, pull request, work item and activity statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	graphCmd.Flags().StringVar(&repositoryFlag, "repository", "", "repository id")

	analyzeCmd.Flags().IntVar(&yearFlag, "year", 0, "calendar year (with --month)")
	analyzeCmd.Flags().IntVar(&monthFlag, "month", 0, "calendar month 1-12 (with --year)")
	analyzeCmd.Flags().StringVar(&authorFlag, "author", "", "only analyze commits whose author matches")
	analyzeCmd.Flags().StringVar(&repositoryFlag, "repository", "", "only analyze commits of this repository id")

	statsCmd.Flags().IntVar(&daysFlag, "days", 0, "window in days (default: stats.default_days)")
}

func runGraph(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	s := resolveScope()
	result, err := svc.CodeGraph(cmd.Context(), engine.GraphRequest{
		Organization: s.organization,
		Project:      s.project,
		RepositoryID: repositoryFlag,
		Token:        s.token,
	})
	if err != nil {
		return err
	}
	return render(cmd, result)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	s := resolveScope()
	result, err := svc.CommitAnalysis(cmd.Context(), engine.AnalysisRequest{
		Organization: s.organization,
		Project:      s.project,
		Year:         optionalInt(cmd, "year", yearFlag),
		Month:        optionalInt(cmd, "month", monthFlag),
		Author:       authorFlag,
		RepositoryID: repositoryFlag,
		Token:        s.token,
	})
	if err != nil {
		return err
	}
	return render(cmd, result)
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	s := resolveScope()
	result, err := svc.GeneralStats(cmd.Context(), engine.StatsRequest{
		Organization: s.organization,
		Project:      s.project,
		Days:         daysFlag,
		Token:        s.token,
	})
	if err != nil {
		return err
	}
	return render(cmd, result)
}
