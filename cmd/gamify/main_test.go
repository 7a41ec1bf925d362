package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops/devopstest"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
)

// writeConfig points the CLI at the fake upstream with no request spacing
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `upstream:
  base_url: ` + baseURL + `
  requests_per_second: 1000
  burst: 100
  max_retries: 0
crawl:
  page_delay: 1ns
  project_delay: 1ns
  detail_delay: 1ns
logging:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AZURE_DEVOPS_ORG", "")
	t.Setenv("AZURE_DEVOPS_BASE_URL", "")
	t.Setenv("GAMIFY_OUTPUT", "")

	t.Cleanup(func() {
		outputFlag, orgFlag, projectFlag, tokenFlag, authorFlag, metricsFile = "", "", "", "", "", ""
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func seedMay(fake *devopstest.Server) {
	may := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	fake.AddProject("Web", devops.Repository{ID: "r1", Name: "site"})
	fake.AddCommits("r1",
		devops.CommitRef{CommitID: "c1", Author: devops.GitUserDate{Name: "Alice", Email: "alice@example.com", Date: may}},
		devops.CommitRef{CommitID: "c2", Author: devops.GitUserDate{Name: "Alice", Email: "alice@example.com", Date: may.Add(time.Hour)}},
		devops.CommitRef{CommitID: "c3", Author: devops.GitUserDate{Name: "Bob", Email: "bob@example.com", Date: may.AddDate(0, 0, 1)}},
	)
}

func TestCommitsCommand(t *testing.T) {
	fake := devopstest.New(t)
	seedMay(fake)
	metricsPath := filepath.Join(t.TempDir(), "gamify.prom")

	out, err := execute(t,
		"commits",
		"--config", writeConfig(t, fake.URL),
		"--org", "contoso", "--project", "Web", "--token", "pat",
		"--year", "2024", "--month", "5",
		"-o", "json",
		"--metrics-file", metricsPath,
	)
	require.NoError(t, err)

	var result struct {
		TotalCommits    int `json:"totalCommits"`
		CommitsByAuthor []struct {
			Key   string `json:"key"`
			Count int    `json:"count"`
		} `json:"commitsByAuthor"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3, result.TotalCommits)
	require.Len(t, result.CommitsByAuthor, 2)
	assert.Equal(t, 2, result.CommitsByAuthor[0].Count)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "gamify_upstream_requests_total")
}

func TestRankingCommand_Table(t *testing.T) {
	fake := devopstest.New(t)
	seedMay(fake)

	out, err := execute(t,
		"ranking",
		"--config", writeConfig(t, fake.URL),
		"--org", "contoso", "--project", "Web", "--token", "pat",
		"--year", "2024", "--month", "5",
		"-o", "table",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "Bob")
}

func TestCommitsCommand_MissingOrganization(t *testing.T) {
	fake := devopstest.New(t)

	_, err := execute(t, "commits", "--config", writeConfig(t, fake.URL), "--token", "pat")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Zero(t, fake.Calls("projects"))
}

func TestCommitsCommand_Unauthorized(t *testing.T) {
	fake := devopstest.New(t)
	seedMay(fake)
	fake.Fail("commits", http.StatusUnauthorized)

	_, err := execute(t,
		"commits",
		"--config", writeConfig(t, fake.URL),
		"--org", "contoso", "--project", "Web", "--token", "bad",
	)
	require.Error(t, err)
	assert.True(t, errors.IsAuthorization(err))
	assert.Equal(t, 3, exitCode(err))
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	t.Cleanup(func() { forceInit = false })

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "base_url: https://dev.azure.com")
	assert.NotContains(t, strings.ToLower(string(data)), "token:")

	_, err = execute(t, "config", "init", "--config", path)
	assert.Error(t, err)

	_, err = execute(t, "config", "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestOptionalInt(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	var year int
	cmd.Flags().IntVar(&year, "year", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--year", "0"}))

	got := optionalInt(cmd, "year", year)
	require.NotNil(t, got)
	assert.Equal(t, 0, *got)

	cmd.Flags().Int("month", 0, "")
	assert.Nil(t, optionalInt(cmd, "month", 0))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(errors.ValidationError("bad")))
	assert.Equal(t, 3, exitCode(errors.UpstreamError(http.StatusForbidden, "projects", "")))
	assert.Equal(t, 1, exitCode(errors.InternalError("boom")))
}

func TestErrorMessage_VerboseAddsDetail(t *testing.T) {
	err := fmt.Errorf("load stats: %w", errors.UpstreamError(http.StatusForbidden, "builds", "no access"))

	plain := errorMessage(err, false)
	assert.Equal(t, "Error: "+err.Error()+"\n", plain)

	detailed := errorMessage(err, true)
	assert.True(t, strings.HasPrefix(detailed, plain))
	assert.Contains(t, detailed, "Status: 403")

	assert.Equal(t, "Error: boom\n", errorMessage(fmt.Errorf("boom"), true))
}
