package main

import (
	"github.com/spf13/cobra"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/engine"
)

var (
	yearFlag   int
	monthFlag  int
	authorFlag string
)

var commitsCmd = &cobra.Command{
	Use:   "commits",
	Short: "Count commits by author, day, project and repository",
	Long: `Counts the commits of one calendar month (--year and --month) or, when
no month is given, of the default window ending today.`,
	Example: `  gamify commits --org contoso --project Web --year 2024 --month 5
  gamify commits --org contoso --author alice -o json`,
	Args: cobra.NoArgs,
	RunE: runCommits,
}

var rankingCmd = &cobra.Command{
	Use:   "ranking",
	Short: "Rank the top 10 developers by recency-weighted commit score",
	Args:  cobra.NoArgs,
	RunE:  runRanking,
}

func init() {
	for _, cmd := range []*cobra.Command{commitsCmd, rankingCmd} {
		cmd.Flags().IntVar(&yearFlag, "year", 0, "calendar year (with --month)")
		cmd.Flags().IntVar(&monthFlag, "month", 0, "calendar month 1-12 (with --year)")
	}
	commitsCmd.Flags().StringVar(&authorFlag, "author", "", "only count commits whose author matches")
}

func runCommits(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	s := resolveScope()
	result, err := svc.CommitMetrics(cmd.Context(), engine.MetricsRequest{
		Organization: s.organization,
		Project:      s.project,
		Year:         optionalInt(cmd, "year", yearFlag),
		Month:        optionalInt(cmd, "month", monthFlag),
		Author:       authorFlag,
		Token:        s.token,
	})
	if err != nil {
		return err
	}
	return render(cmd, result)
}

func runRanking(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	s := resolveScope()
	result, err := svc.DeveloperRanking(cmd.Context(), engine.RankingRequest{
		Organization: s.organization,
		Project:      s.project,
		Year:         optionalInt(cmd, "year", yearFlag),
		Month:        optionalInt(cmd, "month", monthFlag),
		Token:        s.token,
	})
	if err != nil {
		return err
	}
	return render(cmd, result)
}
